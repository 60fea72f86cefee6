// Command tokengen mints bearer tokens for local testing.
//
//	tokengen -sub staff-1 -roles LOGISTICS,CUSTOMER_SUPPORT
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/domain"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "subject (customer or staff id)")
	roles := flag.String("roles", string(domain.RoleCustomer), "comma separated roles")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var parsed []domain.Role
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			parsed = append(parsed, domain.Role(strings.ToUpper(r)))
		}
	}

	token, err := auth.NewTokens(cfg.Auth).Issue(*subject, parsed...)
	if err != nil {
		log.Fatalf("issuing token: %v", err)
	}
	fmt.Println(token)
}

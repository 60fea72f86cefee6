package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Covers reports whether the current stock can satisfy quantity units.
func (p Product) Covers(quantity int) bool {
	return quantity >= 1 && p.Stock >= quantity
}

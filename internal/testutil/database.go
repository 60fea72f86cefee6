package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"storefront/internal/config"
	"storefront/internal/infrastructure/mysql"
)

// SetupTestDB abre la BD de prueba. TEST_MYSQL_DSN la sobreescribe; por defecto
// espera una BD MySQL en localhost:3306 llamada 'storefront_test'
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		dsn = mysql.DSN(config.DatabaseConfig{
			Host: "localhost",
			Port: 3306,
			User: "root",
			Name: "storefront_test",
		})
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Verify connection
	err = db.Ping()
	if err != nil {
		t.Skipf("test database not available: %v", err)
	}

	return db
}

// CleanupTestDB limpia la BD de prueba
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if db == nil {
		return
	}

	tables := []string{"Notifications", "OrderLines", "OrderGatewayTokens", "Orders", "Product"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}

	db.Close()
}

// SetupTestTables crea las tablas necesarias para los tests
func SetupTestTables(t *testing.T, db *sql.DB) {
	if err := mysql.EnsureSchema(context.Background(), db); err != nil {
		t.Logf("failed to create tables: %v", err)
	}
}

// InsertProduct inserta un producto y devuelve su id
func InsertProduct(t *testing.T, db *sql.DB, name string, price string, stock int) int {
	result, err := db.Exec(`INSERT INTO Product (name, price, stock) VALUES (?, ?, ?)`, name, price, stock)
	if err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to read product id: %v", err)
	}
	return int(id)
}

// StockOf lee el stock actual de un producto
func StockOf(t *testing.T, db *sql.DB, productID int) int {
	var stock int
	if err := db.QueryRow(`SELECT stock FROM Product WHERE id = ?`, productID).Scan(&stock); err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return stock
}

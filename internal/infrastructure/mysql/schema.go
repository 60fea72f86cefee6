package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// Tables lists the schema in creation order. Children come after their parents.
var Tables = []struct {
	Name  string
	Query string
}{
	{"Product", `
	CREATE TABLE IF NOT EXISTS Product (
		id INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		price DECIMAL(12,2) NOT NULL,
		stock INT NOT NULL DEFAULT 0,
		category VARCHAR(100),
		createdAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT chk_product_stock CHECK (stock >= 0)
	)`},
	{"Orders", `
	CREATE TABLE IF NOT EXISTS Orders (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		customerId VARCHAR(64) NOT NULL,
		phase VARCHAR(40) NOT NULL,
		paymentMethod VARCHAR(20) NOT NULL DEFAULT 'UNSET',
		deliveryMode VARCHAR(20) NOT NULL DEFAULT 'PICKUP',
		isReservation TINYINT(1) NOT NULL DEFAULT 0,
		stockCommitted TINYINT(1) NOT NULL DEFAULT 0,
		total DECIMAL(12,2) NOT NULL DEFAULT 0.00,
		trackingCode VARCHAR(100) NULL,
		gatewayToken VARCHAR(128) NULL,
		createdAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updatedAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_gateway_token (gatewayToken),
		INDEX idx_phase (phase),
		INDEX idx_customer (customerId)
	)`},
	{"OrderGatewayTokens", `
	CREATE TABLE IF NOT EXISTS OrderGatewayTokens (
		token VARCHAR(128) NOT NULL PRIMARY KEY,
		orderId BIGINT NOT NULL,
		createdAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		FOREIGN KEY (orderId) REFERENCES Orders(id) ON DELETE CASCADE,
		INDEX idx_order (orderId)
	)`},
	{"OrderLines", `
	CREATE TABLE IF NOT EXISTS OrderLines (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		orderId BIGINT NOT NULL,
		productId INT NOT NULL,
		quantity INT NOT NULL,
		unitPrice DECIMAL(12,2) NOT NULL,
		FOREIGN KEY (orderId) REFERENCES Orders(id) ON DELETE CASCADE,
		INDEX idx_order (orderId),
		INDEX idx_product (productId),
		CONSTRAINT chk_line_quantity CHECK (quantity >= 1)
	)`},
	{"Notifications", `
	CREATE TABLE IF NOT EXISTS Notifications (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		targetRole VARCHAR(30) NOT NULL,
		orderId BIGINT NOT NULL,
		category VARCHAR(40) NOT NULL,
		message TEXT,
		status VARCHAR(30) NOT NULL DEFAULT 'OPEN',
		createdAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updatedAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		activeKey VARCHAR(80) AS (
			IF(status IN ('OPEN', 'AWAITING_CUSTOMER_REPLY'), CONCAT(orderId, ':', category), NULL)
		) STORED,
		FOREIGN KEY (orderId) REFERENCES Orders(id) ON DELETE CASCADE,
		UNIQUE KEY uq_active_notification (activeKey),
		INDEX idx_role_status (targetRole, status)
	)`},
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, tbl := range Tables {
		if _, err := db.ExecContext(ctx, tbl.Query); err != nil {
			return fmt.Errorf("creating table %s: %w", tbl.Name, err)
		}
	}
	return nil
}

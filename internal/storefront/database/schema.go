package database

import (
	"context"
	"fmt"
)

func (d Dialect) idColumn() string {
	switch d {
	case Postgres:
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	case MySQL:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// schema uses table-level FOREIGN KEY clauses; MySQL ignores inline
// column REFERENCES.
func (d Dialect) schema() []string {
	id := d.idColumn()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id            ` + id + `,
			email         VARCHAR(255) NOT NULL UNIQUE,
			name          VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role          VARCHAR(32)  NOT NULL CHECK (role IN ('customer', 'admin', 'super_admin')),
			created_at    VARCHAR(40)  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id   ` + id + `,
			name VARCHAR(255) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id          ` + id + `,
			category_id BIGINT NULL,
			name        VARCHAR(255) NOT NULL,
			description TEXT NULL,
			price_cents BIGINT NOT NULL,
			sizes       TEXT NOT NULL,
			images      TEXT NOT NULL,
			created_at  VARCHAR(40) NOT NULL,
			FOREIGN KEY (category_id) REFERENCES categories(id)
		)`,
		`CREATE TABLE IF NOT EXISTS carts (
			id          ` + id + `,
			customer_id BIGINT NOT NULL UNIQUE,
			created_at  VARCHAR(40) NOT NULL,
			FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
		)`,
		// size is '' for "no size" so the unique key holds; NULLs would be distinct.
		`CREATE TABLE IF NOT EXISTS cart_items (
			id          ` + id + `,
			cart_id     BIGINT NOT NULL,
			product_id  BIGINT NOT NULL,
			quantity    INTEGER NOT NULL CHECK (quantity > 0),
			size        VARCHAR(64) NOT NULL DEFAULT '',
			description TEXT NULL,
			created_at  VARCHAR(40) NOT NULL,
			UNIQUE (cart_id, product_id, size),
			FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id)
		)`,
	}
	if d != MySQL {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
			`CREATE INDEX IF NOT EXISTS idx_cart_items_product ON cart_items(product_id)`,
		)
	}
	return stmts
}

// Migrate creates any missing tables. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.Dialect.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", db.Dialect, err)
		}
	}
	return nil
}

// OpenAndMigrate opens the database and bootstraps the schema.
func OpenAndMigrate(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

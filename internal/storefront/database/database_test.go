package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(context.Background(), "sqlite", filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite": SQLite, "Postgres": Postgres, "pgx": Postgres, "mysql": MySQL} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDialect("mssql"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM carts WHERE customer_id = ? AND id > ?"
	if got := SQLite.Rebind(q); got != q {
		t.Errorf("sqlite should keep placeholders, got %q", got)
	}
	if got := Postgres.Rebind(q); got != "SELECT id FROM carts WHERE customer_id = $1 AND id > $2" {
		t.Errorf("unexpected postgres rebind: %q", got)
	}
}

func TestInsertIgnore(t *testing.T) {
	ins := "INSERT INTO carts (customer_id, created_at) VALUES (?, ?)"
	if got := MySQL.InsertIgnore(ins, "customer_id"); got != "INSERT IGNORE INTO carts (customer_id, created_at) VALUES (?, ?)" {
		t.Errorf("unexpected mysql form: %q", got)
	}
	if got := Postgres.InsertIgnore(ins, "customer_id"); got != ins+" ON CONFLICT (customer_id) DO NOTHING" {
		t.Errorf("unexpected postgres form: %q", got)
	}
}

func TestIsUniqueViolationAcrossDrivers(t *testing.T) {
	if !Postgres.IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected pg 23505 to be a unique violation")
	}
	if Postgres.IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if !MySQL.IsUniqueViolation(&mysql.MySQLError{Number: 1062}) {
		t.Error("expected mysql 1062 to be a unique violation")
	}
	if SQLite.IsUniqueViolation(errors.New("disk I/O error")) {
		t.Error("unexpected unique violation")
	}
}

func TestSQLiteUniqueViolationAndInsertIgnore(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	now := FormatTime(time.Now())

	id, inserted, err := db.InsertID(ctx, db, `INSERT INTO customers (email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		"a@example.com", "A", "x", "customer", now)
	if err != nil || !inserted || id == 0 {
		t.Fatalf("insert customer: id=%d inserted=%v err=%v", id, inserted, err)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO customers (email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		"a@example.com", "A2", "x", "customer", now)
	if !db.Dialect.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	stmt := db.Dialect.InsertIgnore(`INSERT INTO carts (customer_id, created_at) VALUES (?, ?)`, "customer_id")
	_, inserted, err = db.InsertID(ctx, db, stmt, id, now)
	if err != nil || !inserted {
		t.Fatalf("first cart insert: inserted=%v err=%v", inserted, err)
	}
	_, inserted, err = db.InsertID(ctx, db, stmt, id, now)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("second insert-if-absent should be skipped")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, "shoes")
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected rollback, found %d rows", n)
	}
}

func TestTimeRoundTripSorts(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(100 * time.Millisecond)
	if !(FormatTime(a) < FormatTime(b)) {
		t.Fatalf("expected lexicographic order: %s < %s", FormatTime(a), FormatTime(b))
	}
	got, err := ParseTime(FormatTime(b))
	if err != nil || !got.Equal(b) {
		t.Fatalf("round trip: got %v err %v", got, err)
	}
}

func TestReadCommittedOptions(t *testing.T) {
	if opts := SQLite.ReadCommitted(); opts != nil {
		t.Errorf("sqlite should use its default level, got %+v", opts)
	}
	for _, d := range []Dialect{MySQL, Postgres} {
		opts := d.ReadCommitted()
		if opts == nil || opts.Isolation != sql.LevelReadCommitted {
			t.Errorf("%s: got %+v, want read committed", d, opts)
		}
	}
}

func TestSchemaDeclaresForeignKeysAtTableLevel(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		for _, stmt := range d.schema() {
			for _, line := range strings.Split(stmt, "\n") {
				line = strings.TrimSpace(line)
				if strings.Contains(line, "REFERENCES") && !strings.HasPrefix(line, "FOREIGN KEY") {
					t.Errorf("%s: column-level reference %q", d, line)
				}
			}
		}
	}
}

func TestDeletingCustomerCascadesToCart(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	now := FormatTime(time.Now())

	exec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("%s: %v", query, err)
		}
	}
	exec(`INSERT INTO customers (id, email, name, password_hash, role, created_at) VALUES (1, 'a@example.com', 'A', 'x', 'customer', ?)`, now)
	exec(`INSERT INTO products (id, name, price_cents, sizes, images, created_at) VALUES (1, 'Mug', 899, '[]', '[]', ?)`, now)
	exec(`INSERT INTO carts (id, customer_id, created_at) VALUES (1, 1, ?)`, now)
	exec(`INSERT INTO cart_items (cart_id, product_id, quantity, created_at) VALUES (1, 1, 2, ?)`, now)

	exec(`DELETE FROM customers WHERE id = 1`)

	for _, table := range []string{"carts", "cart_items"} {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s: %d rows left after customer delete", table, n)
		}
	}
}

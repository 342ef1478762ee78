// Package customers is the credential store: customer accounts, bcrypt
// password hashes and roles.
package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/database"
)

var (
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyUsed   = errors.New("email already exists")
)

// Customer is a storefront account. Admins are customers with an elevated role.
type Customer struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store manages customers in the relational database.
type Store struct {
	db *database.DB
}

// NewStore returns a store on an already migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `SELECT id, email, name, password_hash, role, created_at FROM customers`

// Create adds a customer with a bcrypt password hash.
func (s *Store) Create(ctx context.Context, email, name, password string, role auth.Role) (*Customer, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email required")
	}
	if password == "" {
		return nil, fmt.Errorf("password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	c := &Customer{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	id, _, err := s.db.InsertID(ctx, s.db,
		`INSERT INTO customers (email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.Email, c.Name, c.PasswordHash, string(c.Role), database.FormatTime(c.CreatedAt),
	)
	if err != nil {
		if s.db.Dialect.IsUniqueViolation(err) {
			return nil, ErrEmailAlreadyUsed
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	c.ID = id
	return c, nil
}

// Get fetches a customer by id.
func (s *Store) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.queryOne(ctx, selectColumns+` WHERE id = ?`, id)
}

// GetByEmail fetches a customer by email, case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return s.queryOne(ctx, selectColumns+` WHERE email = ?`, normalizeEmail(email))
}

// List returns all customers, oldest first.
func (s *Store) List(ctx context.Context) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := make([]Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers rows: %w", err)
	}
	return customers, nil
}

// UpdateRole changes a customer's role.
func (s *Store) UpdateRole(ctx context.Context, id int64, role auth.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE customers SET role = ? WHERE id = ?`), string(role), id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return database.RowsAffected(res, ErrCustomerNotFound)
}

// UpdatePassword replaces a customer's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id int64, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE customers SET password_hash = ? WHERE id = ?`), string(hash), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return database.RowsAffected(res, ErrCustomerNotFound)
}

// Authenticate checks email and password.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Customer, error) {
	c, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

// EnsureAccount creates the account when the email is unused and otherwise
// sets its role and password. Used to seed administrators.
func (s *Store) EnsureAccount(ctx context.Context, email, name, password string, role auth.Role) (*Customer, bool, error) {
	existing, err := s.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		c, err := s.Create(ctx, email, name, password, role)
		return c, true, err
	case err != nil:
		return nil, false, err
	}

	if err := s.UpdateRole(ctx, existing.ID, role); err != nil {
		return nil, false, err
	}
	if err := s.UpdatePassword(ctx, existing.ID, password); err != nil {
		return nil, false, err
	}
	existing.Role = role
	return existing, false, nil
}

// Count returns the number of customers.
func (s *Store) Count(ctx context.Context) int {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&count); err != nil {
		return 0
	}
	return count
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, s.db.Rebind(query), args...))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(s scanner) (*Customer, error) {
	var (
		c         Customer
		role      string
		createdAt string
	)
	if err := s.Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", c.ID, err)
	}
	c.Role = parsed

	if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

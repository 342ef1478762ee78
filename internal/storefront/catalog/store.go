// Package catalog stores categories and products. Cart contents join
// against these rows.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcus-qen/storefront/internal/storefront/database"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidProduct   = errors.New("invalid product")
)

// Category groups products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a sellable item. Sizes lists the sizes a cart line may pick.
type Product struct {
	ID           int64     `json:"id"`
	CategoryID   *int64    `json:"categoryId"`
	CategoryName *string   `json:"categoryName"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	PriceCents   int64     `json:"priceCents"`
	Sizes        []string  `json:"sizes"`
	Images       []string  `json:"images"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProductInput is the payload for creating a product.
type ProductInput struct {
	CategoryID  *int64   `json:"categoryId"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	PriceCents  int64    `json:"priceCents"`
	Sizes       []string `json:"sizes"`
	Images      []string `json:"images"`
}

// Validate checks the input before it is written.
func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	for _, size := range in.Sizes {
		if strings.TrimSpace(size) == "" {
			return fmt.Errorf("%w: sizes must not be blank", ErrInvalidProduct)
		}
	}
	return nil
}

// ProductFilter narrows ListProducts. Zero values match everything.
type ProductFilter struct {
	CategoryID int64
	Limit      int
	Offset     int
}

// Store reads and writes the catalog.
type Store struct {
	db *database.DB
}

// NewStore returns a catalog store on an already migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateCategory adds a category with a unique name.
func (s *Store) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name required")
	}
	id, _, err := s.db.InsertID(ctx, s.db, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		if s.db.Dialect.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &Category{ID: id, Name: name}, nil
}

// ListCategories returns all categories by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateProduct validates and inserts a product.
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Sizes == nil {
		in.Sizes = []string{}
	}
	if in.Images == nil {
		in.Images = []string{}
	}

	if in.CategoryID != nil {
		var exists int64
		err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM categories WHERE id = ?`), *in.CategoryID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lookup category: %w", err)
		}
	}

	sizes, err := json.Marshal(in.Sizes)
	if err != nil {
		return nil, fmt.Errorf("encode sizes: %w", err)
	}
	images, err := json.Marshal(in.Images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}

	createdAt := time.Now().UTC()
	id, _, err := s.db.InsertID(ctx, s.db,
		`INSERT INTO products (category_id, name, description, price_cents, sizes, images, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.CategoryID, strings.TrimSpace(in.Name), in.Description, in.PriceCents, string(sizes), string(images), database.FormatTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return s.GetProduct(ctx, id)
}

const productColumns = `SELECT p.id, p.category_id, c.name, p.name, p.description, p.price_cents, p.sizes, p.images, p.created_at
	FROM products p LEFT JOIN categories c ON c.id = p.category_id`

// GetProduct fetches one product with its category name.
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(productColumns+` WHERE p.id = ?`), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// ListProducts returns products, newest first.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	query := productColumns
	args := make([]any, 0, 3)
	if f.CategoryID > 0 {
		query += ` WHERE p.category_id = ?`
		args = append(args, f.CategoryID)
	}
	query += ` ORDER BY p.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*Product, error) {
	var (
		p             Product
		categoryID    sql.NullInt64
		categoryName  sql.NullString
		description   sql.NullString
		sizes, images string
		createdAt     string
	)
	if err := s.Scan(&p.ID, &categoryID, &categoryName, &p.Name, &description, &p.PriceCents, &sizes, &images, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	if categoryName.Valid {
		p.CategoryName = &categoryName.String
	}
	if description.Valid {
		p.Description = &description.String
	}

	var err error
	if p.Sizes, err = DecodeList(sizes); err != nil {
		return nil, fmt.Errorf("product %d sizes: %w", p.ID, err)
	}
	if p.Images, err = DecodeList(images); err != nil {
		return nil, fmt.Errorf("product %d images: %w", p.ID, err)
	}
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}

// DecodeList decodes a JSON string array column. Empty columns decode to an
// empty list.
func DecodeList(raw string) ([]string, error) {
	out := make([]string, 0)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

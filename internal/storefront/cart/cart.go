// Package cart is the cart engine: one cart per customer, one line per
// (product, size), every mutation in a single transaction.
package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcus-qen/storefront/internal/storefront/catalog"
)

var (
	ErrInvalidInput     = errors.New("invalid cart input")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrItemNotFound     = errors.New("cart item not found")
	ErrDuplicateItem    = errors.New("cart already contains this product in that size")
)

// Item is a cart line. Size and Description are nil when unset.
type Item struct {
	ID          int64     `json:"id"`
	CartID      int64     `json:"cartId"`
	ProductID   int64     `json:"productId"`
	Quantity    int       `json:"quantity"`
	Size        *string   `json:"size"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ItemView is a cart line enriched with its product and category.
type ItemView struct {
	Item
	ProductName  string   `json:"productName"`
	PriceCents   int64    `json:"priceCents"`
	Sizes        []string `json:"sizes"`
	Images       []string `json:"images"`
	CategoryName *string  `json:"categoryName"`
}

// AddItemInput is an add-to-cart request.
type AddItemInput struct {
	CustomerID  int64   `json:"userId"`
	ProductID   int64   `json:"productId"`
	Quantity    int     `json:"quantity"`
	Size        *string `json:"size,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate rejects input that must never reach a transaction.
func (in AddItemInput) Validate() error {
	switch {
	case in.CustomerID <= 0:
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	case in.ProductID <= 0:
		return fmt.Errorf("%w: productId is required", ErrInvalidInput)
	case in.Quantity < 1:
		return fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	}
	return nil
}

// AddResult reports whether AddItem inserted a new line or merged into an
// existing one.
type AddResult struct {
	Item    Item
	Created bool
}

// UpdateItemInput changes a line's quantity, size, or both.
type UpdateItemInput struct {
	Quantity *int    `json:"quantity,omitempty"`
	Size     *string `json:"size,omitempty"`
}

// Validate requires at least one field and a positive quantity.
func (in UpdateItemInput) Validate() error {
	if in.Quantity == nil && in.Size == nil {
		return fmt.Errorf("%w: quantity or size is required", ErrInvalidInput)
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	return nil
}

// sizeKey is the stored form of a size: '' stands for "no size" so the
// (cart_id, product_id, size) unique key treats it like any other value.
func sizeKey(size *string) string {
	if size == nil {
		return ""
	}
	return strings.TrimSpace(*size)
}

func sizeValue(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

// offers reports whether a product with the given stored sizes can be
// ordered in size. Products without sizes accept any.
func offers(rawSizes, size string) (bool, error) {
	if size == "" {
		return true, nil
	}
	sizes, err := catalog.DecodeList(rawSizes)
	if err != nil {
		return false, err
	}
	if len(sizes) == 0 {
		return true, nil
	}
	for _, s := range sizes {
		if s == size {
			return true, nil
		}
	}
	return false, nil
}

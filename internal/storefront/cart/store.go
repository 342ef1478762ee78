package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/catalog"
	"github.com/marcus-qen/storefront/internal/storefront/database"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
	"github.com/marcus-qen/storefront/internal/storefront/telemetry"
)

// Store is the cart engine backed by the relational database.
type Store struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time

	// beforeLineInsert, when set, runs inside AddItem's transaction right
	// before a new line is inserted.
	beforeLineInsert func(ctx context.Context, tx *sql.Tx, cartID int64) error
}

// NewStore returns a cart engine on an already migrated database.
func NewStore(db *database.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// track starts a span and returns the function that ends it and records
// the operation's metrics.
func (s *Store) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartCartSpan(ctx, op, attrs...)
	return ctx, func(err error) {
		metrics.RecordCartOperation(op, time.Since(start), err)
		telemetry.EndSpan(span, err)
	}
}

const itemColumns = `SELECT id, cart_id, product_id, quantity, size, description, created_at FROM cart_items`

// AddItem puts quantity units of a product in the customer's cart. The cart
// is created on first use. A line with the same product and size is
// incremented instead of duplicated.
func (s *Store) AddItem(ctx context.Context, in AddItemInput) (res *AddResult, err error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, finish := s.track(ctx, "add", telemetry.CustomerID(in.CustomerID), telemetry.ProductID(in.ProductID))
	defer func() { finish(err) }()

	size := sizeKey(in.Size)
	err = s.db.WithTxOptions(ctx, s.db.Dialect.ReadCommitted(), func(tx *sql.Tx) error {
		if err := s.requireCustomer(ctx, tx, in.CustomerID); err != nil {
			return err
		}

		var rawSizes string
		err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT sizes FROM products WHERE id = ?`), in.ProductID).Scan(&rawSizes)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup product: %w", err)
		}
		ok, err := offers(rawSizes, size)
		if err != nil {
			return fmt.Errorf("decode product sizes: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: size %q is not offered for this product", ErrInvalidInput, size)
		}

		cartID, err := s.ensureCart(ctx, tx, in.CustomerID)
		if err != nil {
			return err
		}

		itemID, found, err := s.findLine(ctx, tx, cartID, in.ProductID, size)
		if err != nil {
			return err
		}
		created := false
		if !found {
			if s.beforeLineInsert != nil {
				if err := s.beforeLineInsert(ctx, tx, cartID); err != nil {
					return err
				}
			}
			itemID, created, err = s.db.InsertID(ctx, tx,
				s.db.Dialect.InsertIgnore(
					`INSERT INTO cart_items (cart_id, product_id, quantity, size, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
					"cart_id, product_id, size"),
				cartID, in.ProductID, in.Quantity, size, in.Description, database.FormatTime(s.now()),
			)
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
			if !created {
				// Another request inserted the same line first; merge into it.
				s.logger.Debug("concurrent insert of cart line, merging",
					zap.Int64("cart_id", cartID), zap.Int64("product_id", in.ProductID))
				if itemID, found, err = s.findLine(ctx, tx, cartID, in.ProductID, size); err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("cart line for product %d vanished during insert", in.ProductID)
				}
			}
		}
		if !created {
			if _, err := tx.ExecContext(ctx,
				s.db.Rebind(`UPDATE cart_items SET quantity = quantity + ? WHERE id = ?`),
				in.Quantity, itemID,
			); err != nil {
				return fmt.Errorf("increment cart item: %w", err)
			}
		}

		item, err := s.getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		res = &AddResult{Item: *item, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) requireCustomer(ctx context.Context, q database.Querier, customerID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM customers WHERE id = ?`), customerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCustomerNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}
	return nil
}

// ensureCart returns the customer's cart id, creating the cart if needed.
// The insert is a no-op when the cart already exists, including when a
// concurrent transaction created it; under read committed the re-read then
// sees that row.
func (s *Store) ensureCart(ctx context.Context, tx *sql.Tx, customerID int64) (int64, error) {
	insert := s.db.Dialect.InsertIgnore(`INSERT INTO carts (customer_id, created_at) VALUES (?, ?)`, "customer_id")
	if _, err := tx.ExecContext(ctx, s.db.Rebind(insert), customerID, database.FormatTime(s.now())); err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}

	var cartID int64
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM carts WHERE customer_id = ?`), customerID).Scan(&cartID); err != nil {
		return 0, fmt.Errorf("read cart: %w", err)
	}
	return cartID, nil
}

func (s *Store) findLine(ctx context.Context, q database.Querier, cartID, productID int64, size string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id FROM cart_items WHERE cart_id = ? AND product_id = ? AND size = ?`),
		cartID, productID, size,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup cart item: %w", err)
	}
	return id, true, nil
}

func (s *Store) getItem(ctx context.Context, q database.Querier, id int64) (*Item, error) {
	return scanItem(q.QueryRowContext(ctx, s.db.Rebind(itemColumns+` WHERE id = ?`), id))
}

// Contents returns the customer's cart lines, most recently added first.
// A customer without a cart has an empty cart.
func (s *Store) Contents(ctx context.Context, customerID int64) (items []ItemView, err error) {
	ctx, finish := s.track(ctx, "contents", telemetry.CustomerID(customerID))
	defer func() { finish(err) }()

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.size, ci.description, ci.created_at,
		       p.name, p.price_cents, p.sizes, p.images, cat.name
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		LEFT JOIN categories cat ON cat.id = p.category_id
		WHERE c.customer_id = ?
		ORDER BY ci.created_at DESC, ci.id DESC`), customerID)
	if err != nil {
		return nil, fmt.Errorf("query cart contents: %w", err)
	}
	defer rows.Close()

	items = make([]ItemView, 0)
	for rows.Next() {
		var (
			v             ItemView
			size          string
			description   sql.NullString
			createdAt     string
			sizes, images string
			categoryName  sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.CartID, &v.ProductID, &v.Quantity, &size, &description, &createdAt,
			&v.ProductName, &v.PriceCents, &sizes, &images, &categoryName); err != nil {
			return nil, fmt.Errorf("scan cart contents: %w", err)
		}
		v.Size = sizeValue(size)
		if description.Valid {
			v.Description = &description.String
		}
		if categoryName.Valid {
			v.CategoryName = &categoryName.String
		}
		if v.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if v.Sizes, err = catalog.DecodeList(sizes); err != nil {
			return nil, fmt.Errorf("product %d sizes: %w", v.ProductID, err)
		}
		if v.Images, err = catalog.DecodeList(images); err != nil {
			return nil, fmt.Errorf("product %d images: %w", v.ProductID, err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart contents rows: %w", err)
	}
	return items, nil
}

// UpdateItem changes a line's quantity and/or size. Moving a line onto a
// size the cart already holds for the same product fails with
// ErrDuplicateItem.
func (s *Store) UpdateItem(ctx context.Context, itemID int64, in UpdateItemInput) (item *Item, err error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, finish := s.track(ctx, "update", telemetry.ItemID(itemID))
	defer func() { finish(err) }()

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}

		quantity := current.Quantity
		if in.Quantity != nil {
			quantity = *in.Quantity
		}
		size := sizeKey(current.Size)
		if in.Size != nil {
			size = sizeKey(in.Size)
		}

		if size != sizeKey(current.Size) {
			var rawSizes string
			if err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT sizes FROM products WHERE id = ?`), current.ProductID).Scan(&rawSizes); err != nil {
				return fmt.Errorf("lookup product: %w", err)
			}
			ok, err := offers(rawSizes, size)
			if err != nil {
				return fmt.Errorf("decode product sizes: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: size %q is not offered for this product", ErrInvalidInput, size)
			}

			_, taken, err := s.findLine(ctx, tx, current.CartID, current.ProductID, size)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateItem
			}
		}

		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`UPDATE cart_items SET quantity = ?, size = ? WHERE id = ?`),
			quantity, size, itemID,
		); err != nil {
			if s.db.Dialect.IsUniqueViolation(err) {
				return ErrDuplicateItem
			}
			return fmt.Errorf("update cart item: %w", err)
		}

		item, err = s.getItem(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes one cart line.
func (s *Store) RemoveItem(ctx context.Context, itemID int64) (err error) {
	ctx, finish := s.track(ctx, "remove", telemetry.ItemID(itemID))
	defer func() { finish(err) }()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM cart_items WHERE id = ?`), itemID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return database.RowsAffected(res, ErrItemNotFound)
}

// Clear empties the customer's cart and returns the number of lines
// removed. Clearing an empty or missing cart succeeds.
func (s *Store) Clear(ctx context.Context, customerID int64) (removed int64, err error) {
	ctx, finish := s.track(ctx, "clear", telemetry.CustomerID(customerID))
	defer func() { finish(err) }()

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE customer_id = ?)`),
		customerID,
	)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return res.RowsAffected()
}

// OwnerOfItem returns the id of the customer whose cart holds the line.
func (s *Store) OwnerOfItem(ctx context.Context, itemID int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT c.customer_id FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE ci.id = ?`),
		itemID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup cart item owner: %w", err)
	}
	return owner, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*Item, error) {
	var (
		item        Item
		size        string
		description sql.NullString
		createdAt   string
	)
	if err := s.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &size, &description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("scan cart item: %w", err)
	}
	item.Size = sizeValue(size)
	if description.Valid {
		item.Description = &description.String
	}
	var err error
	if item.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &item, nil
}

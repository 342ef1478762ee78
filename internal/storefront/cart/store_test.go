package cart

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcus-qen/storefront/internal/storefront/catalog"
	"github.com/marcus-qen/storefront/internal/storefront/database"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }

var _ = Describe("Cart Store", func() {
	var (
		ctx      context.Context
		db       *database.DB
		store    *Store
		products *catalog.Store
		tee      *catalog.Product
		mug      *catalog.Product
	)

	insertCustomer := func(id int64) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO customers (id, email, name, password_hash, role, created_at) VALUES (?, ?, ?, 'x', 'customer', ?)`,
			id, fmt.Sprintf("customer%d@example.com", id), "Customer", database.FormatTime(store.now()))
		Expect(err).NotTo(HaveOccurred())
	}

	countRows := func(table string) int {
		var n int
		Expect(db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)).To(Succeed())
		return n
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = database.OpenAndMigrate(ctx, "sqlite", filepath.Join(GinkgoT().TempDir(), "cart.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		store = NewStore(db, nil)
		products = catalog.NewStore(db)

		shirts, err := products.CreateCategory(ctx, "Shirts")
		Expect(err).NotTo(HaveOccurred())
		tee, err = products.CreateProduct(ctx, catalog.ProductInput{
			CategoryID: &shirts.ID, Name: "Tee", PriceCents: 1999,
			Sizes: []string{"S", "M", "L"}, Images: []string{"tee.jpg"},
		})
		Expect(err).NotTo(HaveOccurred())
		mug, err = products.CreateProduct(ctx, catalog.ProductInput{Name: "Mug", PriceCents: 899})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []int64{1, 5, 7} {
			insertCustomer(id)
		}
	})

	Describe("AddItem", func() {
		It("creates the cart and the line on first add", func() {
			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 2, Size: strPtr("M")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeTrue())
			Expect(res.Item.Quantity).To(Equal(2))
			Expect(res.Item.Size).To(Equal(strPtr("M")))
			Expect(countRows("carts")).To(Equal(1))
		})

		It("merges a repeated product and size into one line with the summed quantity", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 2, Size: strPtr("M")})
			Expect(err).NotTo(HaveOccurred())

			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 3, Size: strPtr("M")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeFalse())
			Expect(res.Item.Quantity).To(Equal(5))

			Expect(countRows("cart_items")).To(Equal(1))
			Expect(countRows("carts")).To(Equal(1))
		})

		It("keeps different sizes on separate lines", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("S")})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("L")})
			Expect(err).NotTo(HaveOccurred())
			Expect(countRows("cart_items")).To(Equal(2))
		})

		It("treats a missing size and an empty size as the same line", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: mug.ID, Quantity: 1})
			Expect(err).NotTo(HaveOccurred())
			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: mug.ID, Quantity: 4, Size: strPtr("")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeFalse())
			Expect(res.Item.Quantity).To(Equal(5))
			Expect(res.Item.Size).To(BeNil())
		})

		DescribeTable("rejects invalid input before touching the database",
			func(in AddItemInput) {
				_, err := store.AddItem(ctx, in)
				Expect(err).To(MatchError(ErrInvalidInput))
				Expect(countRows("carts")).To(BeZero())
			},
			Entry("missing customer", AddItemInput{ProductID: 1, Quantity: 1}),
			Entry("missing product", AddItemInput{CustomerID: 1, Quantity: 1}),
			Entry("zero quantity", AddItemInput{CustomerID: 1, ProductID: 1, Quantity: 0}),
			Entry("negative quantity", AddItemInput{CustomerID: 1, ProductID: 1, Quantity: -3}),
		)

		It("rejects a size the product does not offer", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("XXL")})
			Expect(err).To(MatchError(ErrInvalidInput))
			Expect(countRows("carts")).To(BeZero())
		})

		It("leaves no cart behind when the product does not exist", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: 9999, Quantity: 1})
			Expect(err).To(MatchError(ErrProductNotFound))
			Expect(countRows("carts")).To(BeZero())
			Expect(countRows("cart_items")).To(BeZero())
		})

		It("reports unknown customers", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 404, ProductID: mug.ID, Quantity: 1})
			Expect(err).To(MatchError(ErrCustomerNotFound))
		})

		It("merges into a line another request inserted after the lookup", func() {
			store.beforeLineInsert = func(ctx context.Context, tx *sql.Tx, cartID int64) error {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO cart_items (cart_id, product_id, quantity, size, created_at) VALUES (?, ?, 4, 'M', ?)`,
					cartID, tee.ID, database.FormatTime(store.now()))
				return err
			}

			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 7, ProductID: tee.ID, Quantity: 3, Size: strPtr("M")})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeFalse())
			Expect(res.Item.Quantity).To(Equal(7))
			Expect(countRows("cart_items")).To(Equal(1))
		})

		It("reuses a cart that already exists when the insert is skipped", func() {
			_, err := db.ExecContext(ctx, `INSERT INTO carts (id, customer_id, created_at) VALUES (42, 7, ?)`, database.FormatTime(store.now()))
			Expect(err).NotTo(HaveOccurred())

			var cartID int64
			Expect(db.WithTxOptions(ctx, db.Dialect.ReadCommitted(), func(tx *sql.Tx) error {
				cartID, err = store.ensureCart(ctx, tx, 7)
				return err
			})).To(Succeed())
			Expect(cartID).To(Equal(int64(42)))
			Expect(countRows("carts")).To(Equal(1))
		})

		It("serializes concurrent first adds into one cart", func() {
			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := store.AddItem(ctx, AddItemInput{CustomerID: 7, ProductID: tee.ID, Quantity: 1, Size: strPtr("M")})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(countRows("carts")).To(Equal(1))
			items, err := store.Contents(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].Quantity).To(Equal(workers))
		})
	})

	Describe("Contents", func() {
		It("returns enriched lines, newest first", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("S"), Description: strPtr("gift")})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: mug.ID, Quantity: 2})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddItem(ctx, AddItemInput{CustomerID: 5, ProductID: mug.ID, Quantity: 9})
			Expect(err).NotTo(HaveOccurred())

			items, err := store.Contents(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))

			Expect(items[0].ProductName).To(Equal("Mug"))
			Expect(items[0].CategoryName).To(BeNil())
			Expect(items[0].Sizes).To(BeEmpty())

			Expect(items[1].ProductName).To(Equal("Tee"))
			Expect(items[1].PriceCents).To(Equal(int64(1999)))
			Expect(items[1].CategoryName).To(Equal(strPtr("Shirts")))
			Expect(items[1].Sizes).To(Equal([]string{"S", "M", "L"}))
			Expect(items[1].Images).To(Equal([]string{"tee.jpg"}))
			Expect(items[1].Description).To(Equal(strPtr("gift")))
		})

		It("is empty for a customer without a cart", func() {
			items, err := store.Contents(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).NotTo(BeNil())
			Expect(items).To(BeEmpty())
		})
	})

	Describe("UpdateItem", func() {
		var line Item

		BeforeEach(func() {
			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 2, Size: strPtr("M")})
			Expect(err).NotTo(HaveOccurred())
			line = res.Item
		})

		It("rejects quantity 0 and leaves the line unchanged", func() {
			_, err := store.UpdateItem(ctx, line.ID, UpdateItemInput{Quantity: intPtr(0)})
			Expect(err).To(MatchError(ErrInvalidInput))

			items, err := store.Contents(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(items[0].Quantity).To(Equal(2))
		})

		It("rejects an empty update", func() {
			_, err := store.UpdateItem(ctx, line.ID, UpdateItemInput{})
			Expect(err).To(MatchError(ErrInvalidInput))
		})

		It("updates quantity and size", func() {
			updated, err := store.UpdateItem(ctx, line.ID, UpdateItemInput{Quantity: intPtr(4), Size: strPtr("L")})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Quantity).To(Equal(4))
			Expect(updated.Size).To(Equal(strPtr("L")))
		})

		It("refuses to move a line onto a size already in the cart", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("S")})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.UpdateItem(ctx, line.ID, UpdateItemInput{Size: strPtr("S")})
			Expect(err).To(MatchError(ErrDuplicateItem))
			Expect(countRows("cart_items")).To(Equal(2))
		})

		It("reports missing lines", func() {
			_, err := store.UpdateItem(ctx, 99, UpdateItemInput{Quantity: intPtr(1)})
			Expect(err).To(MatchError(ErrItemNotFound))
		})
	})

	Describe("RemoveItem and Clear", func() {
		It("removes a line once", func() {
			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: mug.ID, Quantity: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.RemoveItem(ctx, res.Item.ID)).To(Succeed())
			Expect(store.RemoveItem(ctx, res.Item.ID)).To(MatchError(ErrItemNotFound))
		})

		It("clears only the customer's own lines and is idempotent", func() {
			_, err := store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: mug.ID, Quantity: 1})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddItem(ctx, AddItemInput{CustomerID: 1, ProductID: tee.ID, Quantity: 1, Size: strPtr("S")})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddItem(ctx, AddItemInput{CustomerID: 7, ProductID: mug.ID, Quantity: 3})
			Expect(err).NotTo(HaveOccurred())

			removed, err := store.Clear(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(2)))

			removed, err = store.Clear(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())

			_, err = store.Clear(ctx, 5)
			Expect(err).NotTo(HaveOccurred())

			items, err := store.Contents(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
		})
	})

	Describe("OwnerOfItem", func() {
		It("resolves the owning customer through the cart", func() {
			res, err := store.AddItem(ctx, AddItemInput{CustomerID: 7, ProductID: mug.ID, Quantity: 1})
			Expect(err).NotTo(HaveOccurred())

			owner, err := store.OwnerOfItem(ctx, res.Item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal(int64(7)))

			_, err = store.OwnerOfItem(ctx, 12345)
			Expect(err).To(MatchError(ErrItemNotFound))
		})
	})
})

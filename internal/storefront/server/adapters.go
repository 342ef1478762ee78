package server

import (
	"context"
	"errors"

	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/cart"
	"github.com/marcus-qen/storefront/internal/storefront/customers"
)

// accountAdapter bridges customers.Store → auth.AccountStore.
type accountAdapter struct {
	store *customers.Store
}

func (a *accountAdapter) Authenticate(ctx context.Context, email, password string) (*auth.Account, error) {
	c, err := a.store.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, customers.ErrInvalidCredentials) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	return toAccount(c), nil
}

func (a *accountAdapter) Register(ctx context.Context, email, name, password string) (*auth.Account, error) {
	c, err := a.store.Create(ctx, email, name, password, auth.RoleCustomer)
	if err != nil {
		if errors.Is(err, customers.ErrEmailAlreadyUsed) {
			return nil, auth.ErrEmailTaken
		}
		return nil, err
	}
	return toAccount(c), nil
}

func (a *accountAdapter) Account(ctx context.Context, id int64) (*auth.Account, error) {
	c, err := a.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(c), nil
}

func toAccount(c *customers.Customer) *auth.Account {
	return &auth.Account{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		CreatedAt: c.CreatedAt,
	}
}

// itemOwners resolves a cart item to the customer whose cart holds it.
func itemOwners(store *cart.Store) auth.OwnerResolver {
	return auth.OwnerResolverFunc(func(ctx context.Context, itemID int64) (int64, error) {
		owner, err := store.OwnerOfItem(ctx, itemID)
		if errors.Is(err, cart.ErrItemNotFound) {
			return 0, auth.ErrNotFound
		}
		return owner, err
	})
}

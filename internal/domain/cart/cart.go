// Package cart implements shopping carts and their line-item rules.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

// Status is the lifecycle state of a cart.
type Status string

const (
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// PaymentStatus is the payment state of a cart.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Quantity bounds for a single line item.
const (
	MinQuantity = 1
	MaxQuantity = 5
)

// ErrActiveCartExists is returned by Store.CreateCart when the user already
// holds a cart awaiting payment.
var ErrActiveCartExists = errors.New("user already has an open cart")

// Cart groups the line items a shopper intends to buy.
type Cart struct {
	ID            string
	UserID        *string
	Status        Status
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	Items         []Item
}

// Open reports whether the cart still accepts item changes.
func (c *Cart) Open() bool {
	return c.Status == StatusAwaitingPayment
}

// Total is the sum of all item subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		total = total.Add(c.Items[i].Subtotal())
	}
	return total
}

// Item is one coffee line in a cart. UnitPrice is the coffee price captured
// when the line was created.
type Item struct {
	ID        string
	CartID    string
	CoffeeID  string
	Quantity  int
	UnitPrice decimal.Decimal
	Coffee    *catalog.Coffee
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal is quantity times unit price.
func (i *Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Store persists carts. Lookups of unknown ids return apperr.NotFound.
type Store interface {
	// Cart returns the cart with its items and their coffees.
	Cart(ctx context.Context, id string) (*Cart, error)
	// ActiveCartByUser returns the user's cart awaiting payment.
	ActiveCartByUser(ctx context.Context, userID string) (*Cart, error)
	// CreateCart inserts an empty cart awaiting payment.
	CreateCart(ctx context.Context, userID *string) (*Cart, error)
	// Atomic runs fn in a single transaction.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside Store.Atomic. Locks are held
// until the transaction ends.
type Tx interface {
	// LockCart returns the cart without items and prevents concurrent
	// status changes.
	LockCart(ctx context.Context, cartID string) (*Cart, error)
	// LockLine serializes writers of the (cart, coffee) line.
	LockLine(ctx context.Context, cartID, coffeeID string) error
	// ItemByCoffee returns the cart's line for the coffee.
	ItemByCoffee(ctx context.Context, cartID, coffeeID string) (*Item, error)
	// ItemByID returns and locks an item belonging to the cart.
	ItemByID(ctx context.Context, cartID, itemID string) (*Item, error)
	InsertItem(ctx context.Context, item *Item) error
	SetQuantity(ctx context.Context, itemID string, quantity int) error
	// DeleteItem removes an item belonging to the cart.
	DeleteItem(ctx context.Context, cartID, itemID string) error
}

// CoffeeReader looks up coffees for price snapshots.
type CoffeeReader interface {
	GetByID(ctx context.Context, id string) (*catalog.Coffee, error)
}

package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
)

// Service applies cart lifecycle and line-item rules on top of a Store.
type Service struct {
	store     Store
	coffees   CoffeeReader
	publisher Publisher
	now       func() time.Time
}

// NewService creates a cart Service. publisher may be nil.
func NewService(store Store, coffees CoffeeReader, publisher Publisher) *Service {
	return &Service{
		store:     store,
		coffees:   coffees,
		publisher: publisher,
		now:       time.Now,
	}
}

// GetOrCreate returns the user's open cart, creating one when none exists.
// A nil or empty userID always creates a new guest cart. Concurrent calls for
// the same user return the same cart.
func (s *Service) GetOrCreate(ctx context.Context, userID *string) (*Cart, error) {
	if userID != nil && *userID == "" {
		userID = nil
	}
	if userID != nil {
		c, err := s.store.ActiveCartByUser(ctx, *userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, errors.Wrap(err, "find open cart")
		}
	}

	c, err := s.store.CreateCart(ctx, userID)
	if err != nil {
		if userID != nil && errors.Is(err, ErrActiveCartExists) {
			// Lost the race to a concurrent creation.
			return s.store.ActiveCartByUser(ctx, *userID)
		}
		return nil, errors.Wrap(err, "create cart")
	}

	s.publish(ctx, Event{Type: EventCartCreated, CartID: c.ID, UserID: c.UserID})
	return c, nil
}

// Get returns the cart with its items.
func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.store.Cart(ctx, cartID)
}

// AddItem adds quantity units of a coffee to the cart. When the cart already
// holds the coffee the quantities are merged, keeping the original unit
// price; otherwise a new line is created at the current coffee price.
//
// AddItem is not idempotent: retrying after an ambiguous failure (for
// example a timeout after commit) may apply the increment twice. UpdateItem
// and RemoveItem are safe to retry.
func (s *Service) AddItem(ctx context.Context, cartID, coffeeID string, quantity int) (*Item, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	coffee, err := s.coffees.GetByID(ctx, coffeeID)
	if err != nil {
		return nil, err
	}

	var (
		result *Item
		merged bool
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}
		if err := tx.LockLine(ctx, cartID, coffeeID); err != nil {
			return errors.Wrap(err, "lock line")
		}

		existing, err := tx.ItemByCoffee(ctx, cartID, coffeeID)
		switch {
		case err == nil:
			total := existing.Quantity + quantity
			if total > MaxQuantity {
				return apperr.Invalid("quantity", "total quantity cannot exceed 5")
			}
			if err := tx.SetQuantity(ctx, existing.ID, total); err != nil {
				return errors.Wrap(err, "merge quantity")
			}
			existing.Quantity = total
			result, merged = existing, true
			return nil
		case !errors.Is(err, apperr.ErrNotFound):
			return errors.Wrap(err, "find line")
		}

		item := &Item{
			CartID:    cartID,
			CoffeeID:  coffeeID,
			Quantity:  quantity,
			UnitPrice: coffee.Price,
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return errors.Wrap(err, "insert item")
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Coffee == nil {
		result.Coffee = coffee
	}

	typ := EventItemAdded
	if merged {
		typ = EventItemUpdated
	}
	s.publish(ctx, Event{
		Type:     typ,
		CartID:   cartID,
		ItemID:   result.ID,
		CoffeeID: coffeeID,
		Quantity: result.Quantity,
	})
	return result, nil
}

// UpdateItem sets the quantity of an item to an absolute value.
func (s *Service) UpdateItem(ctx context.Context, cartID, itemID string, quantity int) (*Item, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	var result *Item
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}
		item, err := tx.ItemByID(ctx, cartID, itemID)
		if err != nil {
			return err
		}
		if err := tx.SetQuantity(ctx, item.ID, quantity); err != nil {
			return errors.Wrap(err, "set quantity")
		}
		item.Quantity = quantity
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:     EventItemUpdated,
		CartID:   cartID,
		ItemID:   itemID,
		CoffeeID: result.CoffeeID,
		Quantity: quantity,
	})
	return result, nil
}

// RemoveItem deletes an item from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, cartID, itemID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{Type: EventItemRemoved, CartID: cartID, ItemID: itemID})
	return nil
}

func lockOpenCart(ctx context.Context, tx Tx, cartID string) (*Cart, error) {
	c, err := tx.LockCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !c.Open() {
		return nil, apperr.Conflict("cart %s is %s", cartID, c.Status)
	}
	return c, nil
}

func validateQuantity(q int) error {
	if q < MinQuantity {
		return apperr.Invalid("quantity", "must be at least 1")
	}
	if q > MaxQuantity {
		return apperr.Invalid("quantity", "cannot exceed 5")
	}
	return nil
}

// publish hands the event to the publisher. Delivery failures are logged and
// do not affect the already committed mutation.
func (s *Service) publish(ctx context.Context, e Event) {
	if s.publisher == nil {
		return
	}
	e.At = s.now()
	if err := s.publisher.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish cart event",
			zap.String("type", string(e.Type)),
			zap.String("cart_id", e.CartID),
			zap.Error(err),
		)
	}
}

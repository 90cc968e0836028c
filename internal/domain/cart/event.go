package cart

import (
	"context"
	"time"
)

// EventType names a cart mutation.
type EventType string

const (
	EventCartCreated EventType = "cart_created"
	EventItemAdded   EventType = "item_added"
	EventItemUpdated EventType = "item_updated"
	EventItemRemoved EventType = "item_removed"
)

// Event describes a committed cart mutation.
type Event struct {
	Type     EventType
	CartID   string
	UserID   *string
	ItemID   string
	CoffeeID string
	Quantity int
	At       time.Time
}

// Publisher delivers cart events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

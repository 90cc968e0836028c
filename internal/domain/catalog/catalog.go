// Package catalog holds the coffee catalog domain: coffees, their tags and
// the rules for creating, updating and removing them.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Coffee is a catalog entry available for purchase.
type Coffee struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Tags        []Tag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tag is a named label shared by any number of coffees.
type Tag struct {
	ID   string
	Name string
}

// TagNames returns the names of the coffee's tags in stored order.
func (c *Coffee) TagNames() []string {
	names := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		names[i] = t.Name
	}
	return names
}

// CreateInput holds the fields of a new coffee.
type CreateInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Tags        []string
}

// Patch is a partial update. Nil fields are left unchanged; a non-nil Tags
// slice replaces the full tag set.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	Tags        []string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.ImageURL == nil && p.Tags == nil
}

// Store persists coffees and tags. Implementations return apperr.NotFound
// for unknown ids.
type Store interface {
	GetByID(ctx context.Context, id string) (*Coffee, error)
	List(ctx context.Context) ([]Coffee, error)
	// Create inserts the coffee, get-or-creates the named tags and links
	// them in one transaction. ID and timestamps are filled in.
	Create(ctx context.Context, c *Coffee, tags []string) error
	// Update applies the patch in one transaction and returns the result.
	Update(ctx context.Context, id string, p Patch) (*Coffee, error)
	// Delete detaches the coffee's tags and deletes it. It returns
	// apperr.Conflict while cart items still reference the coffee.
	Delete(ctx context.Context, id string) error
}

// Invalidator is notified after every successful catalog mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

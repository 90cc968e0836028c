// Package search implements filtered, paginated catalog browsing.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

// Paging limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter describes a catalog search. Zero values mean "not set"; a zero
// Limit selects DefaultLimit.
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Name      string
	Tags      []string
	Limit     int
	Offset    int
}

// Key returns a canonical representation of the filter, suitable as a cache
// key. Filters that select the same page produce the same key.
func (f Filter) Key() string {
	var b strings.Builder
	if f.StartDate != nil {
		fmt.Fprintf(&b, "from=%d;", f.StartDate.UnixNano())
	}
	if f.EndDate != nil {
		fmt.Fprintf(&b, "to=%d;", f.EndDate.UnixNano())
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		fmt.Fprintf(&b, "name=%q;", strings.ToLower(name))
	}
	if tags := cleanTags(f.Tags); len(tags) > 0 {
		fmt.Fprintf(&b, "tags=%q;", tags)
	}
	fmt.Fprintf(&b, "limit=%d;offset=%d", f.Limit, f.Offset)
	return b.String()
}

// Page selects a window of the ordered result set.
type Page struct {
	Limit  int
	Offset int
}

// Pagination describes the returned window relative to the full match set.
type Pagination struct {
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// Result is a page of coffees with pagination metadata.
type Result struct {
	Items      []catalog.Coffee
	Pagination Pagination
}

// Store runs predicates against the catalog. Find orders by creation time,
// newest first, breaking ties by id descending, and loads tags.
type Store interface {
	Find(ctx context.Context, p Predicate, page Page) ([]catalog.Coffee, error)
	Count(ctx context.Context, p Predicate) (int, error)
}

// Cache stores search results by filter key. Load resolves the key to a
// versioned slot; Save must only be given a slot Load returned during the
// same search.
type Cache interface {
	Load(ctx context.Context, key string) (r *Result, slot string, ok bool, err error)
	Save(ctx context.Context, slot string, r *Result) error
}

// Engine executes catalog searches.
type Engine struct {
	store Store
	cache Cache
}

// NewEngine creates an Engine. cache may be nil.
func NewEngine(store Store, cache Cache) *Engine {
	return &Engine{store: store, cache: cache}
}

// Search validates paging, builds the predicate and returns the requested
// page together with the total number of matches.
func (e *Engine) Search(ctx context.Context, f Filter) (*Result, error) {
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		return nil, apperr.Invalid("limit", "must be between 1 and 100")
	}
	if f.Offset < 0 {
		return nil, apperr.Invalid("offset", "must not be negative")
	}

	lg := zctx.From(ctx)
	var slot string
	if e.cache != nil {
		r, s, ok, err := e.cache.Load(ctx, f.Key())
		switch {
		case err != nil:
			lg.Warn("Search cache load failed", zap.Error(err))
		case ok:
			return r, nil
		}
		slot = s
	}

	pred := Build(f)
	page := Page{Limit: f.Limit, Offset: f.Offset}

	var (
		items []catalog.Coffee
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = e.store.Find(gctx, pred, page)
		if err != nil {
			return errors.Wrap(err, "find coffees")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = e.store.Count(gctx, pred)
		if err != nil {
			return errors.Wrap(err, "count coffees")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if items == nil {
		items = []catalog.Coffee{}
	}

	r := &Result{
		Items: items,
		Pagination: Pagination{
			Total:   total,
			Limit:   f.Limit,
			Offset:  f.Offset,
			HasMore: f.Offset < total-f.Limit,
		},
	}

	if slot != "" {
		if err := e.cache.Save(ctx, slot, r); err != nil {
			lg.Warn("Search cache save failed", zap.Error(err))
		}
	}
	return r, nil
}

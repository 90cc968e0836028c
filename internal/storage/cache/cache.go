// Package cache caches search results in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

const (
	keyPrefix     = "coffee:search:"
	generationKey = keyPrefix + "gen"
)

var (
	_ search.Cache        = (*SearchCache)(nil)
	_ catalog.Invalidator = (*SearchCache)(nil)
)

// SearchCache stores search pages keyed by filter. Keys embed a generation
// counter; Invalidate bumps it so every previously cached page becomes
// unreachable and expires on its own.
type SearchCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSearchCache creates a SearchCache whose entries live for ttl.
func NewSearchCache(client redis.UniversalClient, ttl time.Duration) *SearchCache {
	return &SearchCache{client: client, ttl: ttl}
}

// Load returns the cached result for the filter key, if any, and the Redis
// key it resolved under the current generation. The returned key is the
// slot to pass to Save.
func (c *SearchCache) Load(ctx context.Context, filterKey string) (*search.Result, string, bool, error) {
	key, err := c.key(ctx, filterKey)
	if err != nil {
		return nil, "", false, err
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, key, false, nil
	}
	if err != nil {
		return nil, "", false, errors.Wrap(err, "get")
	}

	var p page
	if err := json.Unmarshal(data, &p); err != nil {
		// Corrupt entry, overwrite it.
		return nil, key, false, errors.Wrap(err, "decode")
	}
	return p.result(), key, true, nil
}

// Save stores the result in a slot returned by Load. A slot from a
// generation that has since been invalidated is never read again, so a
// result computed concurrently with a catalog change cannot be served.
func (c *SearchCache) Save(ctx context.Context, slot string, r *search.Result) error {
	if slot == "" {
		return errors.New("empty slot")
	}
	data, err := json.Marshal(newPage(r))
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	if err := c.client.Set(ctx, slot, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Invalidate makes all cached pages stale.
func (c *SearchCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return errors.Wrap(err, "bump generation")
	}
	return nil
}

func (c *SearchCache) key(ctx context.Context, filterKey string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", errors.Wrap(err, "get generation")
	}
	sum := sha256.Sum256([]byte(filterKey))
	return fmt.Sprintf("%s%d:%x", keyPrefix, gen, sum), nil
}

// page is the stored form of a search.Result.
type page struct {
	Items   []coffee `json:"items"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	HasMore bool     `json:"hasMore"`
}

type coffee struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	Tags        []tag           `json:"tags"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newPage(r *search.Result) page {
	p := page{
		Items:   make([]coffee, len(r.Items)),
		Total:   r.Pagination.Total,
		Limit:   r.Pagination.Limit,
		Offset:  r.Pagination.Offset,
		HasMore: r.Pagination.HasMore,
	}
	for i, c := range r.Items {
		tags := make([]tag, len(c.Tags))
		for j, t := range c.Tags {
			tags[j] = tag{ID: t.ID, Name: t.Name}
		}
		p.Items[i] = coffee{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Price:       c.Price,
			ImageURL:    c.ImageURL,
			Tags:        tags,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
	}
	return p
}

func (p page) result() *search.Result {
	r := &search.Result{
		Items: make([]catalog.Coffee, len(p.Items)),
		Pagination: search.Pagination{
			Total:   p.Total,
			Limit:   p.Limit,
			Offset:  p.Offset,
			HasMore: p.HasMore,
		},
	}
	for i, c := range p.Items {
		tags := make([]catalog.Tag, len(c.Tags))
		for j, t := range c.Tags {
			tags[j] = catalog.Tag{ID: t.ID, Name: t.Name}
		}
		r.Items[i] = catalog.Coffee{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Price:       c.Price,
			ImageURL:    c.ImageURL,
			Tags:        tags,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
	}
	return r
}

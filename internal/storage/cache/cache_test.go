package cache

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

func newTestCache(t *testing.T, ttl time.Duration) (*SearchCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSearchCache(client, ttl), mr
}

func sampleResult() *search.Result {
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return &search.Result{
		Items: []catalog.Coffee{{
			ID:          "c1",
			Name:        "Latte",
			Description: "Espresso with steamed milk",
			Price:       decimal.RequireFromString("4.50"),
			ImageURL:    "https://cdn.example.com/latte.png",
			Tags:        []catalog.Tag{{ID: "t1", Name: "hot"}, {ID: "t2", Name: "milk"}},
			CreatedAt:   created,
			UpdatedAt:   created,
		}},
		Pagination: search.Pagination{Total: 11, Limit: 1, Offset: 3, HasMore: true},
	}
}

func TestSearchCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, slot, ok, err := c.Load(ctx, "limit=10;offset=0")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotEmpty(t, slot)

	want := sampleResult()
	require.NoError(t, c.Save(ctx, slot, want))

	got, again, ok, err := c.Load(ctx, "limit=10;offset=0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, slot, again)
	assert.Equal(t, want.Pagination, got.Pagination)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Latte", got.Items[0].Name)
	assert.Equal(t, "4.50", got.Items[0].Price.StringFixed(2))
	assert.True(t, want.Items[0].CreatedAt.Equal(got.Items[0].CreatedAt))
	assert.Equal(t, []string{"hot", "milk"}, got.Items[0].TagNames())

	_, other, ok, err := c.Load(ctx, "limit=10;offset=10")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEqual(t, slot, other)
}

func TestSearchCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, slot, _, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, slot, sampleResult()))
	require.NoError(t, c.Invalidate(ctx))

	_, fresh, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEqual(t, slot, fresh)

	require.NoError(t, c.Save(ctx, fresh, sampleResult()))
	_, _, ok, err = c.Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearchCache_SaveAfterInvalidateIsUnreachable(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, slot, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Save(ctx, slot, sampleResult()))

	_, _, ok, err = c.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// changingStore adds a coffee and invalidates the cache during its first
// Find, like a Create committing while a search is in flight.
type changingStore struct {
	mu      sync.Mutex
	coffees []catalog.Coffee
	onFind  func()
	finds   int
}

func (s *changingStore) Find(context.Context, search.Predicate, search.Page) ([]catalog.Coffee, error) {
	s.mu.Lock()
	s.finds++
	items := slices.Clone(s.coffees)
	hook := s.onFind
	s.onFind = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return items, nil
}

func (s *changingStore) Count(context.Context, search.Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coffees), nil
}

func TestSearchCache_ConcurrentInvalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	latte := sampleResult().Items[0]
	mocha := latte
	mocha.ID, mocha.Name = "c2", "Mocha"

	store := &changingStore{coffees: []catalog.Coffee{latte}}
	store.onFind = func() {
		store.mu.Lock()
		store.coffees = append(store.coffees, mocha)
		store.mu.Unlock()
		assert.NoError(t, c.Invalidate(ctx))
	}
	e := search.NewEngine(store, c)

	_, err := e.Search(ctx, search.Filter{})
	require.NoError(t, err)

	r, err := e.Search(ctx, search.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.finds)
	assert.Equal(t, 2, r.Pagination.Total)
	assert.Len(t, r.Items, 2)

	_, err = e.Search(ctx, search.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.finds)
}

func TestSearchCache_TTL(t *testing.T) {
	c, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	_, slot, _, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, slot, sampleResult()))
	mr.FastForward(31 * time.Second)

	_, _, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, slot, _, err := c.Load(context.Background(), "k")
	require.Error(t, err)
	assert.Empty(t, slot)
	require.Error(t, c.Invalidate(context.Background()))
	require.Error(t, c.Save(context.Background(), "", sampleResult()))
}

package search

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

// --- Mock implementations ---

// memStore evaluates predicates in memory with the same ordering the
// PostgreSQL store uses.
type memStore struct {
	coffees []catalog.Coffee
	err     error
}

func (m *memStore) matching(p Predicate) []catalog.Coffee {
	var out []catalog.Coffee
	for i := range m.coffees {
		if p.Match(&m.coffees[i]) {
			out = append(out, m.coffees[i])
		}
	}
	slices.SortFunc(out, func(a, b catalog.Coffee) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (m *memStore) Find(_ context.Context, p Predicate, page Page) ([]catalog.Coffee, error) {
	if m.err != nil {
		return nil, m.err
	}
	all := m.matching(p)
	if page.Offset >= len(all) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(all))
	return all[page.Offset:end], nil
}

func (m *memStore) Count(_ context.Context, p Predicate) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.matching(p)), nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*Result
	loadErr error
	saves   int
}

func (c *mapCache) Load(_ context.Context, key string) (*Result, string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, "", false, c.loadErr
	}
	r, ok := c.entries[key]
	return r, key, ok, nil
}

func (c *mapCache) Save(_ context.Context, key string, r *Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*Result)
	}
	c.entries[key] = r
	c.saves++
	return nil
}

// --- Helpers ---

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func coffee(id, name string, day int, tags ...string) catalog.Coffee {
	c := catalog.Coffee{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString("3.00"),
		CreatedAt: base.AddDate(0, 0, day),
	}
	for _, t := range tags {
		c.Tags = append(c.Tags, catalog.Tag{ID: "t-" + t, Name: t})
	}
	return c
}

func fixture() *memStore {
	return &memStore{coffees: []catalog.Coffee{
		coffee("a", "Latte", 0, "milk", "hot"),
		coffee("b", "Iced Latte", 1, "milk", "cold"),
		coffee("c", "Espresso", 2, "hot"),
		coffee("d", "Cold Brew", 3, "cold"),
		coffee("e", "Mocha", 4, "milk", "chocolate"),
	}}
}

func ids(items []catalog.Coffee) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func at(day int) *time.Time {
	t := base.AddDate(0, 0, day)
	return &t
}

// --- Tests ---

func TestSearch_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filters newest first", Filter{}, []string{"e", "d", "c", "b", "a"}},
		{"name substring case insensitive", Filter{Name: "LATTE"}, []string{"b", "a"}},
		{"tags are ORed", Filter{Tags: []string{"cold", "chocolate"}}, []string{"e", "d", "b"}},
		{"unknown tag", Filter{Tags: []string{"tea"}}, []string{}},
		{"start date inclusive", Filter{StartDate: at(3)}, []string{"e", "d"}},
		{"end date inclusive", Filter{EndDate: at(1)}, []string{"b", "a"}},
		{"date range", Filter{StartDate: at(1), EndDate: at(3)}, []string{"d", "c", "b"}},
		{"filters are ANDed", Filter{Name: "latte", Tags: []string{"cold"}}, []string{"b"}},
		{"blank name ignored", Filter{Name: "  "}, []string{"e", "d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(fixture(), nil)

			r, err := e.Search(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(r.Items))
			assert.Equal(t, len(tt.want), r.Pagination.Total)
		})
	}
}

func TestSearch_Pagination(t *testing.T) {
	e := NewEngine(fixture(), nil)
	ctx := context.Background()

	r, err := e.Search(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 5, Limit: DefaultLimit, Offset: 0, HasMore: false}, r.Pagination)

	r, err = e.Search(ctx, Filter{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d"}, ids(r.Items))
	assert.True(t, r.Pagination.HasMore)

	r, err = e.Search(ctx, Filter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(r.Items))
	assert.False(t, r.Pagination.HasMore)

	r, err = e.Search(ctx, Filter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, r.Items)
	assert.NotNil(t, r.Items)
	assert.Equal(t, 5, r.Pagination.Total)
	assert.False(t, r.Pagination.HasMore)
}

func TestSearch_HugeOffset(t *testing.T) {
	e := NewEngine(fixture(), nil)

	r, err := e.Search(context.Background(), Filter{Limit: 10, Offset: math.MaxInt - 5})
	require.NoError(t, err)
	assert.Empty(t, r.Items)
	assert.Equal(t, 5, r.Pagination.Total)
	assert.Equal(t, math.MaxInt-5, r.Pagination.Offset)
	assert.False(t, r.Pagination.HasMore)
}

func TestSearch_PagesPartitionResults(t *testing.T) {
	store := &memStore{}
	for i := range 23 {
		store.coffees = append(store.coffees, coffee(fmt.Sprintf("c%02d", i), "Blend", i%4, "hot"))
	}
	e := NewEngine(store, nil)

	var seen []string
	for offset := 0; ; offset += 5 {
		r, err := e.Search(context.Background(), Filter{Limit: 5, Offset: offset})
		require.NoError(t, err)
		seen = append(seen, ids(r.Items)...)
		if !r.Pagination.HasMore {
			break
		}
	}
	require.Len(t, seen, 23)

	unique := slices.Clone(seen)
	slices.Sort(unique)
	assert.Len(t, slices.Compact(unique), 23)
}

func TestSearch_InvalidPaging(t *testing.T) {
	e := NewEngine(fixture(), nil)

	for _, f := range []Filter{{Limit: -1}, {Limit: 101}, {Offset: -1}} {
		_, err := e.Search(context.Background(), f)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}

	r, err := e.Search(context.Background(), Filter{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, r.Pagination.Limit)
}

func TestSearch_StoreError(t *testing.T) {
	e := NewEngine(&memStore{err: errors.New("connection reset")}, nil)

	_, err := e.Search(context.Background(), Filter{})
	require.ErrorContains(t, err, "connection reset")
}

func TestSearch_Cache(t *testing.T) {
	store := fixture()
	cache := &mapCache{}
	e := NewEngine(store, cache)
	ctx := context.Background()

	first, err := e.Search(ctx, Filter{Tags: []string{"milk"}})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.saves)

	store.coffees = nil
	second, err := e.Search(ctx, Filter{Tags: []string{" milk", "milk"}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.saves)
}

func TestSearch_CacheErrorFallsThrough(t *testing.T) {
	cache := &mapCache{loadErr: errors.New("redis down")}
	e := NewEngine(fixture(), cache)

	r, err := e.Search(context.Background(), Filter{Name: "mocha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, ids(r.Items))
	assert.Zero(t, cache.saves)
}

func TestBuild(t *testing.T) {
	assert.Empty(t, Build(Filter{}))

	p := Build(Filter{
		StartDate: at(0),
		EndDate:   at(1),
		Name:      " mocha ",
		Tags:      []string{"b", "a", "b", ""},
	})
	require.Len(t, p, 4)
	assert.Equal(t, CreatedFrom{At: *at(0)}, p[0])
	assert.Equal(t, CreatedUntil{At: *at(1)}, p[1])
	assert.Equal(t, NameContains{Substr: "mocha"}, p[2])
	assert.Equal(t, AnyTag{Names: []string{"a", "b"}}, p[3])
}

func TestFilterKey(t *testing.T) {
	a := Filter{Name: "Latte", Tags: []string{"hot", "milk"}, Limit: 10}
	b := Filter{Name: " latte", Tags: []string{"milk", "hot", "milk"}, Limit: 10}
	assert.Equal(t, a.Key(), b.Key())

	c := a
	c.Offset = 10
	assert.NotEqual(t, a.Key(), c.Key())
}

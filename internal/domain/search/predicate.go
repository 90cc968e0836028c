package search

import (
	"slices"
	"strings"
	"time"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

// Clause is a single filter condition over coffees. Stores translate the
// concrete clause types into their query language; Match evaluates the same
// condition in memory.
type Clause interface {
	Match(c *catalog.Coffee) bool
}

// CreatedFrom keeps coffees created at or after At.
type CreatedFrom struct{ At time.Time }

func (f CreatedFrom) Match(c *catalog.Coffee) bool { return !c.CreatedAt.Before(f.At) }

// CreatedUntil keeps coffees created at or before At.
type CreatedUntil struct{ At time.Time }

func (f CreatedUntil) Match(c *catalog.Coffee) bool { return !c.CreatedAt.After(f.At) }

// NameContains keeps coffees whose name contains Substr, ignoring case.
type NameContains struct{ Substr string }

func (f NameContains) Match(c *catalog.Coffee) bool {
	return strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Substr))
}

// AnyTag keeps coffees carrying at least one of Names.
type AnyTag struct{ Names []string }

func (f AnyTag) Match(c *catalog.Coffee) bool {
	for _, t := range c.Tags {
		if slices.Contains(f.Names, t.Name) {
			return true
		}
	}
	return false
}

// Predicate is the conjunction of its clauses. An empty predicate matches
// every coffee.
type Predicate []Clause

// Match reports whether c satisfies every clause.
func (p Predicate) Match(c *catalog.Coffee) bool {
	for _, cl := range p {
		if !cl.Match(c) {
			return false
		}
	}
	return true
}

// clauseBuilder derives at most one clause from a filter.
type clauseBuilder func(f Filter) (Clause, bool)

var builders = []clauseBuilder{
	func(f Filter) (Clause, bool) {
		if f.StartDate == nil {
			return nil, false
		}
		return CreatedFrom{At: *f.StartDate}, true
	},
	func(f Filter) (Clause, bool) {
		if f.EndDate == nil {
			return nil, false
		}
		return CreatedUntil{At: *f.EndDate}, true
	},
	func(f Filter) (Clause, bool) {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, false
		}
		return NameContains{Substr: name}, true
	},
	func(f Filter) (Clause, bool) {
		tags := cleanTags(f.Tags)
		if len(tags) == 0 {
			return nil, false
		}
		return AnyTag{Names: tags}, true
	},
}

// Build combines the clauses of every filter that is set.
func Build(f Filter) Predicate {
	var p Predicate
	for _, b := range builders {
		if cl, ok := b(f); ok {
			p = append(p, cl)
		}
	}
	return p
}

// cleanTags trims, drops empty names and de-duplicates, returning a sorted
// slice so equal filters produce equal clauses.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

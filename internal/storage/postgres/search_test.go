package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

type unknownClause struct{}

func (unknownClause) Match(*catalog.Coffee) bool { return true }

func TestBuildWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name string
		pred search.Predicate
		sql  string
		args []any
	}{
		{
			name: "empty",
			sql:  "",
		},
		{
			name: "date range",
			pred: search.Predicate{search.CreatedFrom{At: from}, search.CreatedUntil{At: to}},
			sql:  " WHERE c.created_at >= $1 AND c.created_at <= $2",
			args: []any{from, to},
		},
		{
			name: "name is escaped",
			pred: search.Predicate{search.NameContains{Substr: `50%_off\`}},
			sql:  " WHERE c.name ILIKE $1",
			args: []any{`%50\%\_off\\%`},
		},
		{
			name: "tags",
			pred: search.Predicate{search.NameContains{Substr: "latte"}, search.AnyTag{Names: []string{"hot", "milk"}}},
			sql: " WHERE c.name ILIKE $1 AND EXISTS (SELECT 1 FROM coffee_tags ct JOIN tags t ON t.id = ct.tag_id\n" +
				"\t\tWHERE ct.coffee_id = c.id AND t.name = ANY($2))",
			args: []any{"%latte%", []string{"hot", "milk"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := buildWhere(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, w.sql())
			assert.Equal(t, tt.args, w.args)
		})
	}
}

func TestBuildWhere_PagingPlaceholdersFollowFilters(t *testing.T) {
	w, err := buildWhere(search.Predicate{search.NameContains{Substr: "mocha"}})
	require.NoError(t, err)

	assert.Equal(t, "$2", w.arg(10))
	assert.Equal(t, "$3", w.arg(20))
	assert.Equal(t, []any{"%mocha%", 10, 20}, w.args)
}

func TestBuildWhere_UnknownClause(t *testing.T) {
	_, err := buildWhere(search.Predicate{unknownClause{}})
	require.Error(t, err)
}

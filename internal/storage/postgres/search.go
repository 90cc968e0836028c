package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

const (
	findCoffeesSQL  = `SELECT ` + coffeeColumns + ` FROM coffees c`
	countCoffeesSQL = `SELECT count(*) FROM coffees c`
	searchOrderSQL  = ` ORDER BY c.created_at DESC, c.id DESC`

	anyTagSQL = `EXISTS (SELECT 1 FROM coffee_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.coffee_id = c.id AND t.name = ANY(%s))`
)

var _ search.Store = (*CoffeeRepository)(nil)

// Find returns one page of coffees matching the predicate, newest first.
func (r *CoffeeRepository) Find(ctx context.Context, p search.Predicate, page search.Page) ([]catalog.Coffee, error) {
	w, err := buildWhere(p)
	if err != nil {
		return nil, err
	}
	sql := findCoffeesSQL + w.sql() + searchOrderSQL +
		" LIMIT " + w.arg(page.Limit) + " OFFSET " + w.arg(page.Offset)

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("searching coffees: %w", err)
	}
	coffees, err := pgx.CollectRows(rows, scanCoffee)
	if err != nil {
		return nil, fmt.Errorf("searching coffees: %w", err)
	}
	if err := loadTags(ctx, r.pool, coffees); err != nil {
		return nil, err
	}
	return coffees, nil
}

// Count returns the number of coffees matching the predicate.
func (r *CoffeeRepository) Count(ctx context.Context, p search.Predicate) (int, error) {
	w, err := buildWhere(p)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.pool.QueryRow(ctx, countCoffeesSQL+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting coffees: %w", err)
	}
	return n, nil
}

// where accumulates SQL conditions and their positional arguments.
type where struct {
	conds []string
	args  []any
}

// arg registers a value and returns its placeholder.
func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func buildWhere(p search.Predicate) (*where, error) {
	w := &where{}
	for _, cl := range p {
		switch cl := cl.(type) {
		case search.CreatedFrom:
			w.conds = append(w.conds, "c.created_at >= "+w.arg(cl.At))
		case search.CreatedUntil:
			w.conds = append(w.conds, "c.created_at <= "+w.arg(cl.At))
		case search.NameContains:
			w.conds = append(w.conds, "c.name ILIKE "+w.arg("%"+escapeLike(cl.Substr)+"%"))
		case search.AnyTag:
			w.conds = append(w.conds, fmt.Sprintf(anyTagSQL, w.arg(cl.Names)))
		default:
			return nil, errors.Errorf("unsupported search clause %T", cl)
		}
	}
	return w, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

const (
	coffeeColumns = `c.id, c.name, c.description, c.price, c.image_url, c.created_at, c.updated_at`

	getCoffeeSQL = `SELECT ` + coffeeColumns + ` FROM coffees c WHERE c.id = $1`

	listCoffeesSQL = `SELECT ` + coffeeColumns + ` FROM coffees c ORDER BY c.created_at DESC, c.id DESC`

	insertCoffeeSQL = `INSERT INTO coffees (name, description, price, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	updateCoffeeSQL = `UPDATE coffees c SET
			name        = COALESCE($2, c.name),
			description = COALESCE($3, c.description),
			price       = COALESCE($4, c.price),
			image_url   = COALESCE($5, c.image_url),
			updated_at  = now()
		WHERE c.id = $1
		RETURNING ` + coffeeColumns

	// The no-op update makes RETURNING yield rows for existing tags too.
	upsertTagsSQL = `INSERT INTO tags (name) SELECT unnest($1::text[])
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`

	linkTagsSQL = `INSERT INTO coffee_tags (coffee_id, tag_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`

	unlinkTagsSQL = `DELETE FROM coffee_tags WHERE coffee_id = $1`

	tagsForCoffeesSQL = `SELECT ct.coffee_id, t.id, t.name
		FROM coffee_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.coffee_id = ANY($1::uuid[])
		ORDER BY t.name`

	lockCoffeeSQL = `SELECT id FROM coffees WHERE id = $1 FOR UPDATE`

	coffeeInCartSQL = `SELECT EXISTS (SELECT 1 FROM cart_items WHERE coffee_id = $1)`

	deleteCoffeeSQL = `DELETE FROM coffees WHERE id = $1`
)

var _ catalog.Store = (*CoffeeRepository)(nil)

// CoffeeRepository implements catalog.Store and search.Store backed by
// PostgreSQL.
type CoffeeRepository struct {
	pool *pgxpool.Pool
}

// NewCoffeeRepository returns a CoffeeRepository that uses the given pool.
func NewCoffeeRepository(pool *pgxpool.Pool) *CoffeeRepository {
	return &CoffeeRepository{pool: pool}
}

// GetByID returns a coffee with its tags.
func (r *CoffeeRepository) GetByID(ctx context.Context, id string) (*catalog.Coffee, error) {
	rows, err := r.pool.Query(ctx, getCoffeeSQL, id)
	if err != nil {
		return nil, notFoundOr(err, "coffee", id, "getting")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoffee)
	if err != nil {
		return nil, notFoundOr(err, "coffee", id, "getting")
	}

	coffees := []catalog.Coffee{c}
	if err := loadTags(ctx, r.pool, coffees); err != nil {
		return nil, err
	}
	return &coffees[0], nil
}

// List returns all coffees, newest first.
func (r *CoffeeRepository) List(ctx context.Context) ([]catalog.Coffee, error) {
	rows, err := r.pool.Query(ctx, listCoffeesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coffees: %w", err)
	}
	coffees, err := pgx.CollectRows(rows, scanCoffee)
	if err != nil {
		return nil, fmt.Errorf("listing coffees: %w", err)
	}
	if err := loadTags(ctx, r.pool, coffees); err != nil {
		return nil, err
	}
	return coffees, nil
}

// Create inserts the coffee and links it to the named tags, creating tags
// that do not exist yet.
func (r *CoffeeRepository) Create(ctx context.Context, c *catalog.Coffee, tags []string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertCoffeeSQL, c.Name, c.Description, c.Price, c.ImageURL).
			Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting coffee: %w", err)
		}

		linked, err := attachTags(ctx, tx, c.ID, tags)
		if err != nil {
			return err
		}
		c.Tags = linked
		return nil
	})
}

// Update applies the non-nil patch fields. A non-nil tag list replaces the
// coffee's associations.
func (r *CoffeeRepository) Update(ctx context.Context, id string, p catalog.Patch) (*catalog.Coffee, error) {
	var out catalog.Coffee
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, updateCoffeeSQL, id, p.Name, p.Description, p.Price, p.ImageURL)
		if err != nil {
			return notFoundOr(err, "coffee", id, "updating")
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanCoffee)
		if err != nil {
			return notFoundOr(err, "coffee", id, "updating")
		}

		if p.Tags != nil {
			if _, err := tx.Exec(ctx, unlinkTagsSQL, id); err != nil {
				return fmt.Errorf("detaching tags of %q: %w", id, err)
			}
			if _, err := attachTags(ctx, tx, id, p.Tags); err != nil {
				return err
			}
		}

		coffees := []catalog.Coffee{out}
		if err := loadTags(ctx, tx, coffees); err != nil {
			return err
		}
		out = coffees[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete detaches the coffee's tags and removes it. The coffee row is locked
// first so a concurrent cart insert either completes before the reference
// check or fails on the foreign key afterwards.
func (r *CoffeeRepository) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, lockCoffeeSQL, id).Scan(&locked); err != nil {
			return notFoundOr(err, "coffee", id, "locking")
		}

		var inCart bool
		if err := tx.QueryRow(ctx, coffeeInCartSQL, id).Scan(&inCart); err != nil {
			return fmt.Errorf("checking cart references of %q: %w", id, err)
		}
		if inCart {
			return apperr.Conflict("coffee %s is referenced by cart items", id)
		}

		if _, err := tx.Exec(ctx, unlinkTagsSQL, id); err != nil {
			return fmt.Errorf("detaching tags of %q: %w", id, err)
		}
		if _, err := tx.Exec(ctx, deleteCoffeeSQL, id); err != nil {
			if pgCode(err) == codeForeignKeyViolation {
				return apperr.Conflict("coffee %s is referenced by cart items", id)
			}
			return fmt.Errorf("deleting coffee %q: %w", id, err)
		}
		return nil
	})
}

// attachTags get-or-creates the named tags and links them to the coffee.
// It returns the linked tags ordered by name.
func attachTags(ctx context.Context, q querier, coffeeID string, names []string) ([]catalog.Tag, error) {
	rows, err := q.Query(ctx, upsertTagsSQL, names)
	if err != nil {
		return nil, fmt.Errorf("upserting tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.Tag])
	if err != nil {
		return nil, fmt.Errorf("upserting tags: %w", err)
	}

	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	if _, err := q.Exec(ctx, linkTagsSQL, coffeeID, ids); err != nil {
		return nil, fmt.Errorf("linking tags to %q: %w", coffeeID, err)
	}

	sortTags(tags)
	return tags, nil
}

// loadTags fills in the Tags of every coffee with a single query.
func loadTags(ctx context.Context, q querier, coffees []catalog.Coffee) error {
	if len(coffees) == 0 {
		return nil
	}
	ids := make([]string, len(coffees))
	index := make(map[string]int, len(coffees))
	for i := range coffees {
		ids[i] = coffees[i].ID
		index[coffees[i].ID] = i
		coffees[i].Tags = []catalog.Tag{}
	}

	rows, err := q.Query(ctx, tagsForCoffeesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			coffeeID string
			t        catalog.Tag
		)
		if err := rows.Scan(&coffeeID, &t.ID, &t.Name); err != nil {
			return fmt.Errorf("scanning tag: %w", err)
		}
		if i, ok := index[coffeeID]; ok {
			coffees[i].Tags = append(coffees[i].Tags, t)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "loading tags")
	}
	return nil
}

func scanCoffee(row pgx.CollectableRow) (catalog.Coffee, error) {
	var c catalog.Coffee
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Price, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func sortTags(tags []catalog.Tag) {
	slices.SortFunc(tags, func(a, b catalog.Tag) int {
		return strings.Compare(a.Name, b.Name)
	})
}

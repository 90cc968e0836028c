package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/cart"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
)

const (
	cartColumns = `id, user_id, status, payment_status, created_at, updated_at, completed_at`

	getCartSQL = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`

	activeCartSQL = `SELECT ` + cartColumns + ` FROM carts
		WHERE user_id = $1 AND status = 'AWAITING_PAYMENT'`

	insertCartSQL = `INSERT INTO carts (user_id) VALUES ($1) RETURNING ` + cartColumns

	// FOR SHARE blocks status changes but lets item writers of the same
	// cart proceed in parallel, so item transactions must not update the
	// cart row itself.
	lockCartSQL = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR SHARE`

	itemSelectSQL = `SELECT i.id, i.cart_id, i.coffee_id, i.quantity, i.unit_price, i.created_at, i.updated_at,
			` + coffeeColumns + `
		FROM cart_items i JOIN coffees c ON c.id = i.coffee_id`

	cartItemsSQL = itemSelectSQL + ` WHERE i.cart_id = $1 ORDER BY i.created_at, i.id`

	itemByCoffeeSQL = itemSelectSQL + ` WHERE i.cart_id = $1 AND i.coffee_id = $2`

	itemByIDSQL = itemSelectSQL + ` WHERE i.id = $1 AND i.cart_id = $2 FOR UPDATE OF i`

	lockLineSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	insertItemSQL = `INSERT INTO cart_items (cart_id, coffee_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	setQuantitySQL = `UPDATE cart_items SET quantity = $2, updated_at = now() WHERE id = $1`

	deleteItemSQL = `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Cart returns the cart with its items in insertion order.
func (r *CartRepository) Cart(ctx context.Context, id string) (*cart.Cart, error) {
	c, err := queryCart(ctx, r.pool, getCartSQL, id)
	if err != nil {
		return nil, notFoundOr(err, "cart", id, "getting")
	}
	if err := r.loadItems(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ActiveCartByUser returns the user's cart awaiting payment.
func (r *CartRepository) ActiveCartByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := queryCart(ctx, r.pool, activeCartSQL, userID)
	if err != nil {
		return nil, notFoundOr(err, "open cart for user", userID, "getting")
	}
	if err := r.loadItems(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCart inserts an empty cart awaiting payment. It returns
// cart.ErrActiveCartExists when the partial unique index on open carts
// rejects the insert.
func (r *CartRepository) CreateCart(ctx context.Context, userID *string) (*cart.Cart, error) {
	c, err := queryCart(ctx, r.pool, insertCartSQL, userID)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return nil, cart.ErrActiveCartExists
		}
		return nil, fmt.Errorf("creating cart: %w", err)
	}
	c.Items = []cart.Item{}
	return c, nil
}

// Atomic runs fn in a transaction, committing when fn returns nil.
func (r *CartRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &cartTx{tx: tx})
	})
}

func (r *CartRepository) loadItems(ctx context.Context, c *cart.Cart) error {
	rows, err := r.pool.Query(ctx, cartItemsSQL, c.ID)
	if err != nil {
		return fmt.Errorf("loading items of cart %q: %w", c.ID, err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return fmt.Errorf("loading items of cart %q: %w", c.ID, err)
	}
	c.Items = items
	return nil
}

type cartTx struct {
	tx pgx.Tx
}

var _ cart.Tx = (*cartTx)(nil)

func (t *cartTx) LockCart(ctx context.Context, cartID string) (*cart.Cart, error) {
	c, err := queryCart(ctx, t.tx, lockCartSQL, cartID)
	if err != nil {
		return nil, notFoundOr(err, "cart", cartID, "locking")
	}
	return c, nil
}

func (t *cartTx) LockLine(ctx context.Context, cartID, coffeeID string) error {
	if _, err := t.tx.Exec(ctx, lockLineSQL, cartID+":"+coffeeID); err != nil {
		return fmt.Errorf("locking line %s/%s: %w", cartID, coffeeID, err)
	}
	return nil
}

func (t *cartTx) ItemByCoffee(ctx context.Context, cartID, coffeeID string) (*cart.Item, error) {
	rows, err := t.tx.Query(ctx, itemByCoffeeSQL, cartID, coffeeID)
	if err != nil {
		return nil, fmt.Errorf("getting line %s/%s: %w", cartID, coffeeID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		return nil, notFoundOr(err, "cart item for coffee", coffeeID, "getting")
	}
	return &it, nil
}

func (t *cartTx) ItemByID(ctx context.Context, cartID, itemID string) (*cart.Item, error) {
	rows, err := t.tx.Query(ctx, itemByIDSQL, itemID, cartID)
	if err != nil {
		return nil, notFoundOr(err, "cart item", itemID, "getting")
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		return nil, notFoundOr(err, "cart item", itemID, "getting")
	}
	return &it, nil
}

func (t *cartTx) InsertItem(ctx context.Context, it *cart.Item) error {
	err := t.tx.QueryRow(ctx, insertItemSQL, it.CartID, it.CoffeeID, it.Quantity, it.UnitPrice).
		Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
	switch {
	case pgCode(err) == codeForeignKeyViolation:
		// The coffee was removed after it was read.
		return apperr.NotFound("coffee", it.CoffeeID)
	case err != nil:
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

func (t *cartTx) SetQuantity(ctx context.Context, itemID string, quantity int) error {
	tag, err := t.tx.Exec(ctx, setQuantitySQL, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart item", itemID)
	}
	return nil
}

func (t *cartTx) DeleteItem(ctx context.Context, cartID, itemID string) error {
	tag, err := t.tx.Exec(ctx, deleteItemSQL, itemID, cartID)
	if err != nil {
		return notFoundOr(err, "cart item", itemID, "deleting")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart item", itemID)
	}
	return nil
}

func queryCart(ctx context.Context, q querier, sql string, arg any) (*cart.Cart, error) {
	var (
		c             cart.Cart
		status, pstat string
	)
	err := q.QueryRow(ctx, sql, arg).Scan(
		&c.ID, &c.UserID, &status, &pstat, &c.CreatedAt, &c.UpdatedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = cart.Status(status)
	c.PaymentStatus = cart.PaymentStatus(pstat)
	return &c, nil
}

func scanItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it cart.Item
		c  catalog.Coffee
	)
	err := row.Scan(
		&it.ID, &it.CartID, &it.CoffeeID, &it.Quantity, &it.UnitPrice, &it.CreatedAt, &it.UpdatedAt,
		&c.ID, &c.Name, &c.Description, &c.Price, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt,
	)
	it.Coffee = &c
	return it, err
}

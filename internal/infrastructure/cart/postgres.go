package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricelens/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS carts (
    id         TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS cart_items (
    cart_id   TEXT NOT NULL REFERENCES carts (id) ON DELETE CASCADE,
    reference TEXT NOT NULL,
    quantity  INTEGER NOT NULL CHECK (quantity > 0),
    added_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (cart_id, reference)
);
`

// PostgresStore keeps carts in PostgreSQL, sharing the catalog's pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore ensures the cart tables exist on pool
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure cart schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, cart *domain.Cart) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO carts (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		cart.ID, cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Cart, error) {
	return loadCart(ctx, s.pool, id)
}

// AddItem bumps the cart and merges the line in one transaction. The cart row
// lock serializes concurrent additions to the same cart.
func (s *PostgresStore) AddItem(ctx context.Context, id, reference string, quantity int, at time.Time) (*domain.Cart, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrCartNotFound
	}

	_, err = tx.Exec(ctx, `
INSERT INTO cart_items (cart_id, reference, quantity, added_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (cart_id, reference) DO UPDATE SET
    quantity = cart_items.quantity + EXCLUDED.quantity`,
		id, reference, quantity, at,
	)
	if err != nil {
		return nil, err
	}

	cart, err := loadCart(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrStorageUnavailable, err)
	}
	return cart, nil
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCart(ctx context.Context, q querier, id string) (*domain.Cart, error) {
	cart := domain.Cart{ID: id}
	err := q.QueryRow(ctx, `SELECT created_at, updated_at FROM carts WHERE id = $1`, id).
		Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
SELECT reference, quantity, added_at
FROM cart_items
WHERE cart_id = $1
ORDER BY added_at, reference`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.Reference, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cart, nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pricelens/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
    reference        TEXT PRIMARY KEY,
    store            TEXT NOT NULL,
    title            TEXT NOT NULL,
    raw_old_price    TEXT NOT NULL DEFAULT '',
    raw_new_price    TEXT NOT NULL DEFAULT '',
    volume           TEXT NOT NULL DEFAULT '',
    old_price_amount NUMERIC(12, 2),
    new_price_amount NUMERIC(12, 2),
    last_updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS catalog_entries_store_idx ON catalog_entries (store);
CREATE INDEX IF NOT EXISTS catalog_entries_title_idx ON catalog_entries (title, reference);
`

const entryColumns = `reference, store, title, raw_old_price, raw_new_price, volume,
       old_price_amount::text, new_price_amount::text, last_updated_at`

// PostgresStore is the catalog persisted in PostgreSQL. Each batch runs in one
// transaction; each record write runs in its own savepoint so that a failing
// record does not poison the rest of the batch.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStorageUnavailable, err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("[CATALOG] Connected to postgres")
	return store, nil
}

// EnsureSchema creates the catalog table and indexes if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Pool exposes the connection pool to stores sharing the database
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM catalog_entries WHERE reference = $1`, reference)
	return scanEntry(row)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_entries`).Scan(&count)
	return count, err
}

func (s *PostgresStore) CountByStore(ctx context.Context, store domain.Store) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_entries WHERE store = $1`, string(store)).Scan(&count)
	return count, err
}

func (s *PostgresStore) MostRecentUpdate(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(last_updated_at) FROM catalog_entries`).Scan(&latest); err != nil {
		return nil, err
	}
	return latest, nil
}

// Stats reads all aggregates in a single statement, i.e. from one snapshot
func (s *PostgresStore) Stats(ctx context.Context) (domain.IngestionStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT store, COUNT(*), MAX(last_updated_at)
FROM catalog_entries
GROUP BY store`)
	if err != nil {
		return domain.IngestionStats{}, err
	}
	defer rows.Close()

	stats := domain.IngestionStats{PerStoreCounts: make(map[domain.Store]int, len(domain.Stores))}
	for rows.Next() {
		var (
			store  string
			count  int
			latest time.Time
		)
		if err := rows.Scan(&store, &count, &latest); err != nil {
			return domain.IngestionStats{}, err
		}
		stats.PerStoreCounts[domain.Store(store)] = count
		stats.TotalProducts += count
		if stats.LastUpdate == nil || latest.After(*stats.LastUpdate) {
			ts := latest
			stats.LastUpdate = &ts
		}
	}
	if err := rows.Err(); err != nil {
		return domain.IngestionStats{}, err
	}
	return stats, nil
}

func (s *PostgresStore) AllWithParseablePrice(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+`
FROM catalog_entries
WHERE new_price_amount IS NOT NULL OR old_price_amount IS NOT NULL
ORDER BY title, reference`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+`
FROM catalog_entries
WHERE ($1 = '' OR store = $1)
  AND ($2 = '' OR title ILIKE '%' || $2 || '%')
ORDER BY title, reference`, string(filter.Store), escapeLike(filter.Query))
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// InBatch runs fn inside one transaction that is committed only if fn succeeds
func (s *PostgresStore) InBatch(ctx context.Context, fn func(ctx context.Context, tx domain.CatalogTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

// FindByReference locks the row until the batch ends
func (t *postgresTx) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	var entry *domain.CatalogEntry
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		row := sp.QueryRow(ctx, `SELECT `+entryColumns+` FROM catalog_entries WHERE reference = $1 FOR UPDATE`, reference)
		var err error
		entry, err = scanEntry(row)
		return err
	})
	return entry, err
}

func (t *postgresTx) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	return t.savepoint(ctx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, `
INSERT INTO catalog_entries (
    reference, store, title, raw_old_price, raw_new_price, volume,
    old_price_amount, new_price_amount, last_updated_at
) VALUES ($1, $2, $3, $4, $5, $6, CAST($7::text AS NUMERIC), CAST($8::text AS NUMERIC), $9)
ON CONFLICT (reference) DO UPDATE SET
    store = EXCLUDED.store,
    title = EXCLUDED.title,
    raw_old_price = EXCLUDED.raw_old_price,
    raw_new_price = EXCLUDED.raw_new_price,
    volume = EXCLUDED.volume,
    old_price_amount = EXCLUDED.old_price_amount,
    new_price_amount = EXCLUDED.new_price_amount,
    last_updated_at = EXCLUDED.last_updated_at`,
			entry.Reference, string(entry.Store), entry.Title, entry.RawOldPrice, entry.RawNewPrice, entry.Volume,
			amountParam(entry.OldPriceAmount), amountParam(entry.NewPriceAmount), entry.LastUpdatedAt,
		)
		return err
	})
}

// savepoint runs fn in a nested transaction; a failure rolls back only fn's work
func (t *postgresTx) savepoint(ctx context.Context, fn func(sp pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: savepoint: %v", domain.ErrStorageUnavailable, err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w: rollback to savepoint: %v", domain.ErrStorageUnavailable, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

func collectEntries(rows pgx.Rows) ([]domain.CatalogEntry, error) {
	defer rows.Close()

	var result []domain.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanEntry(row pgx.Row) (*domain.CatalogEntry, error) {
	var (
		entry     domain.CatalogEntry
		store     string
		oldAmount *string
		newAmount *string
	)
	err := row.Scan(
		&entry.Reference, &store, &entry.Title, &entry.RawOldPrice, &entry.RawNewPrice, &entry.Volume,
		&oldAmount, &newAmount, &entry.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.Store = domain.Store(store)
	if entry.OldPriceAmount, err = parseAmount(oldAmount); err != nil {
		return nil, err
	}
	if entry.NewPriceAmount, err = parseAmount(newAmount); err != nil {
		return nil, err
	}
	return &entry, nil
}

func parseAmount(raw *string) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}
	amount, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("bad stored amount %q: %w", *raw, err)
	}
	return decimal.NewNullDecimal(amount), nil
}

func amountParam(amount decimal.NullDecimal) *string {
	if !amount.Valid {
		return nil
	}
	text := amount.Decimal.StringFixed(2)
	return &text
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes query match literally inside an ILIKE pattern
func escapeLike(query string) string {
	return likeEscaper.Replace(query)
}

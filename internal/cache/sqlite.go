package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"hot-rank/internal/core"
)

// Migrations returns the schema of the sqlite tier
func Migrations() []core.Migration {
	return []core.Migration{
		{
			Scope:       "cache",
			Version:     1,
			Name:        "create_cache_entries",
			Description: "Key/value table backing the sqlite cache tier",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS cache_entries (
					key TEXT PRIMARY KEY,
					payload BLOB NOT NULL,
					expires_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);`,
		},
	}
}

// SQLiteTier keeps cache entries in a local sqlite file so a restarted
// process starts warm
type SQLiteTier struct {
	db    *core.Database
	clock clock.Clock
}

const sqliteReadyTimeout = 500 * time.Millisecond

// NewSQLiteTier migrates the schema and drops rows that expired while the
// process was down
func NewSQLiteTier(ctx context.Context, db *core.Database, logger *core.Logger, clk clock.Clock) (*SQLiteTier, error) {
	if clk == nil {
		clk = clock.WallClock
	}

	if err := core.NewMigrationService(db, logger).Migrate(ctx, Migrations()); err != nil {
		return nil, fmt.Errorf("migrate cache tier: %w", err)
	}

	tier := &SQLiteTier{db: db, clock: clk}
	removed, err := tier.Prune(ctx)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		logger.Info("Pruned expired cache rows", "count", removed)
	}

	return tier, nil
}

func (t *SQLiteTier) Kind() string  { return "sqlite" }
func (t *SQLiteTier) Enabled() bool { return true }

func (t *SQLiteTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	var expiresAt int64
	err := t.db.ScanRowWithTimeout(ctx,
		`SELECT payload, expires_at FROM cache_entries WHERE key = ?`,
		[]any{key}, &payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if expiresAt <= t.clock.Now().UnixMilli() {
		return nil, false, nil
	}
	return payload, true, nil
}

func (t *SQLiteTier) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := t.clock.Now()
	_, err := t.db.ExecWithTimeout(ctx, `
		INSERT INTO cache_entries (key, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, payload, now.Add(ttl).UnixMilli(), now.UnixMilli())
	return err
}

func (t *SQLiteTier) Delete(ctx context.Context, key string) error {
	_, err := t.db.ExecWithTimeout(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Prune deletes every expired row
func (t *SQLiteTier) Prune(ctx context.Context) (int64, error) {
	result, err := t.db.ExecWithTimeout(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, t.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cache tier: %w", err)
	}
	return result.RowsAffected()
}

func (t *SQLiteTier) Ready(ctx context.Context) bool {
	return t.db.PingWithTimeout(ctx, sqliteReadyTimeout) == nil
}

// Close logs the pool statistics, then closes the database
func (t *SQLiteTier) Close() error {
	t.db.LogStats()
	return t.db.Close()
}

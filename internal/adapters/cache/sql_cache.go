package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// scoreRow is one row of the score_cache table. Times are unix seconds.
type scoreRow struct {
	UID       int64   `db:"uid"`
	Score     float64 `db:"score"`
	Model     string  `db:"model"`
	ScoredAt  int64   `db:"scored_at"`
	ExpiresAt int64   `db:"expires_at"`
}

// SQLCache stores scores in a SQL table. The queries are shared by the
// SQLite and MySQL backends, which only differ in their schema.
type SQLCache struct {
	db      *sqlx.DB
	name    string
	logger  *zap.Logger
	cleaner *cleaner
	now     func() time.Time
}

func newSQLCache(db *sqlx.DB, name string, schema []string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare %s schema: %w", name, err)
		}
	}

	c := &SQLCache{
		db:      db,
		name:    name,
		logger:  logger,
		cleaner: newCleaner(cleanupFreq, logger),
		now:     time.Now,
	}
	c.cleaner.start(c.Cleanup)
	return c, nil
}

// Get retrieves a live cached entry for a message
func (c *SQLCache) Get(ctx context.Context, uid uint32) (*core.CacheEntry, error) {
	var row scoreRow
	err := c.db.GetContext(ctx, &row, `
		SELECT uid, score, model, scored_at, expires_at
		FROM score_cache
		WHERE uid = ? AND expires_at > ?
	`, int64(uid), c.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s cache: %w", c.name, err)
	}

	return &core.CacheEntry{
		UID:       uint32(row.UID),
		Score:     row.Score,
		Model:     row.Model,
		ScoredAt:  time.Unix(row.ScoredAt, 0),
		ExpiresAt: time.Unix(row.ExpiresAt, 0),
	}, nil
}

// Set stores a cache entry, replacing any previous one for the message
func (c *SQLCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	row := scoreRow{
		UID:       int64(entry.UID),
		Score:     entry.Score,
		Model:     entry.Model,
		ScoredAt:  entry.ScoredAt.Unix(),
		ExpiresAt: entry.ExpiresAt.Unix(),
	}
	_, err := c.db.NamedExecContext(ctx, `
		REPLACE INTO score_cache (uid, score, model, scored_at, expires_at)
		VALUES (:uid, :score, :model, :scored_at, :expires_at)
	`, row)
	if err != nil {
		return fmt.Errorf("failed to store %s cache entry: %w", c.name, err)
	}
	return nil
}

// Delete removes a cache entry
func (c *SQLCache) Delete(ctx context.Context, uid uint32) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM score_cache WHERE uid = ?`, int64(uid)); err != nil {
		return fmt.Errorf("failed to delete %s cache entry: %w", c.name, err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *SQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM score_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLCache) Stop() {
	c.cleaner.stop()
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.String("backend", c.name), zap.Error(err))
	}
}

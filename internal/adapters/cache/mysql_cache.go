package cache

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS score_cache (
		uid BIGINT UNSIGNED PRIMARY KEY,
		score DOUBLE NOT NULL,
		model VARCHAR(255) NOT NULL DEFAULT '',
		scored_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_score_cache_expires_at (expires_at)
	)`,
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLCache(db, "mysql", mysqlSchema, logger, cleanupFreq)
}

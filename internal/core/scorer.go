package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RecordScorer scores a fetched message
type RecordScorer interface {
	ScoreRecord(ctx context.Context, r EmailRecord) ScoreResult
}

// ImportanceService decides how important a message is. Priority senders
// short-circuit to 1, then the per-message cache is consulted, then the
// classifier.
type ImportanceService struct {
	classifier   *Classifier
	cache        ScoreCache
	senders      SenderPolicy
	logger       *zap.Logger
	cacheEnabled bool
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewImportanceService creates a new importance service
func NewImportanceService(
	classifier *Classifier,
	cache ScoreCache,
	senders SenderPolicy,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
) *ImportanceService {
	return &ImportanceService{
		classifier:   classifier,
		cache:        cache,
		senders:      senders,
		logger:       logger,
		cacheEnabled: cacheEnabled && cache != nil,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// ScoreRecord returns the importance of r
func (s *ImportanceService) ScoreRecord(ctx context.Context, r EmailRecord) ScoreResult {
	// Check priority senders first
	if s.senders != nil && s.senders.IsWhitelisted(r.SenderAddress) {
		s.logger.Debug("Priority sender, skipping classification",
			zap.Uint32("uid", r.UID),
			zap.String("sender", r.SenderAddress))
		return ScoreResult{Score: 1, Model: "priority"}
	}

	// Check cache if enabled
	if s.cacheEnabled {
		if entry, err := s.cache.Get(ctx, r.UID); err == nil {
			s.logger.Debug("Cache hit for message", zap.Uint32("uid", r.UID))
			return ScoreResult{Score: entry.Score, Model: entry.Model}
		}
	}

	result := s.classifier.Score(ctx, r.Snapshot())
	if result.Failed() {
		s.logger.Warn("Falling back to neutral score",
			zap.Uint32("uid", r.UID),
			zap.Stringer("reason", result.Failure))
		return result
	}

	// Only real scores are cached, a fallback may succeed next time
	if s.cacheEnabled {
		now := s.now()
		entry := &CacheEntry{
			UID:       r.UID,
			Score:     result.Score,
			Model:     result.Model,
			ScoredAt:  now,
			ExpiresAt: now.Add(s.cacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.Error(err))
		}
	}

	return result
}

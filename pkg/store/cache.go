package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/observability"
)

const cacheKeyPrefix = "stagepass:perm:"

// CachedStore decorates a PermissionStore with a Redis read-through cache
// keyed by principal ID. Every mutating path invalidates, so a stale entry
// can survive at most one TTL after an out-of-band store edit; the
// resolver's healing path tolerates that.
//
// GetByEmail deliberately bypasses the cache: it only serves the resolver's
// migration fallback, which must see the store's true state.
type CachedStore struct {
	inner  PermissionStore
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedStore wraps inner with a Redis cache.
func NewCachedStore(inner PermissionStore, client *redis.Client, ttl time.Duration, logger *observability.Logger) *CachedStore {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

func (s *CachedStore) GetByUserID(ctx context.Context, userID string) (*authz.PermissionRecord, error) {
	data, err := s.client.Get(ctx, cacheKey(userID)).Bytes()
	if err == nil {
		var record authz.PermissionRecord
		if err := json.Unmarshal(data, &record); err == nil {
			observability.PermissionCacheOps.WithLabelValues("hit").Inc()
			return &record, nil
		}
		// Corrupt entry: fall through to the store and rewrite.
		s.client.Del(ctx, cacheKey(userID))
	} else if err != redis.Nil {
		// Cache outages degrade to direct store reads, never to failures.
		s.logger.WithError(err).Warn("permission cache read failed")
	}
	observability.PermissionCacheOps.WithLabelValues("miss").Inc()

	record, err := s.inner.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, record)
	return record, nil
}

func (s *CachedStore) GetByEmail(ctx context.Context, email string) (*authz.PermissionRecord, error) {
	return s.inner.GetByEmail(ctx, email)
}

func (s *CachedStore) Upsert(ctx context.Context, record *authz.PermissionRecord) error {
	if err := s.inner.Upsert(ctx, record); err != nil {
		return err
	}
	s.invalidate(ctx, record.UserID)
	return nil
}

func (s *CachedStore) DeleteByUserID(ctx context.Context, userID string) error {
	if err := s.inner.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedStore) List(ctx context.Context, clientIDs *[]string) ([]*authz.PermissionRecord, error) {
	return s.inner.List(ctx, clientIDs)
}

// Ping reports cache connectivity, for readiness checks.
func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}

func (s *CachedStore) fill(ctx context.Context, record *authz.PermissionRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, cacheKey(record.UserID), data, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Warn("permission cache write failed")
	}
}

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	if err := s.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("permission cache invalidation failed")
	}
}

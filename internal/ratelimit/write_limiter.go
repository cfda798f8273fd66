package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/officeflow/internal/config"
)

const (
	keyWriteActor    = "officeflow:write:actor:%s"
	keyDocumentWrite = "officeflow:write:document:%s:%s"
)

// WriteLimiter throttles mutating requests per actor and keeps a single
// in-flight write per document across replicas.
type WriteLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

// NewWriteLimiter returns nil when limiting is disabled; a nil limiter
// allows everything.
func NewWriteLimiter(cfg config.Config, client Client) (*WriteLimiter, error) {
	limitCfg := cfg.WriteRateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.PerSecond <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}
	lockTTL := limitCfg.DocumentLockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}

	return &WriteLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.PerSecond,
		burst:   limitCfg.Burst,
		lockTTL: lockTTL,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil
}

func (l *WriteLimiter) AllowActor(ctx context.Context, actorID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWriteActor, strings.TrimSpace(actorID)), l.rate, l.burst)
}

// TryLockDocument marks a document as being written. An empty token with
// ok=true means limiting is off.
func (l *WriteLimiter) TryLockDocument(ctx context.Context, kind, id string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, documentKey(kind, id), l.lockTTL)
}

func (l *WriteLimiter) ReleaseDocument(ctx context.Context, kind, id, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, documentKey(kind, id), token)
}

func documentKey(kind, id string) string {
	return fmt.Sprintf(keyDocumentWrite, strings.TrimSpace(kind), strings.TrimSpace(id))
}

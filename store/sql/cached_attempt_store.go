package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-intake/core"
)

const attemptCacheKeyPrefix = "go-webhook-intake::delivery_attempt::v1"

// CachedDeliveryAttemptStore layers a read-through cache over attempt
// lookups. Writes go straight to the base store and evict the cached
// entry; window queries always hit the base store.
type CachedDeliveryAttemptStore struct {
	base  core.DeliveryAttemptStore
	cache repositorycache.CacheService
}

func NewCachedDeliveryAttemptStore(
	base core.DeliveryAttemptStore,
	cacheService repositorycache.CacheService,
) (*CachedDeliveryAttemptStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery attempt store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: attempt cache service is required")
	}
	return &CachedDeliveryAttemptStore{base: base, cache: cacheService}, nil
}

// AttemptCacheKey returns the deterministic cache key for one attempt:
// go-webhook-intake::delivery_attempt::v1::<id> with the id URL-path escaped.
func AttemptCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: attempt id is required")
	}
	return attemptCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedDeliveryAttemptStore) Create(ctx context.Context, attempt *core.DeliveryAttempt) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery attempt store is not configured")
	}
	return s.base.Create(ctx, attempt)
}

func (s *CachedDeliveryAttemptStore) Update(ctx context.Context, attempt *core.DeliveryAttempt) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery attempt store is not configured")
	}
	if err := s.base.Update(ctx, attempt); err != nil {
		return err
	}
	cacheKey, err := AttemptCacheKey(attempt.ID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return nil
}

func (s *CachedDeliveryAttemptStore) GetByID(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: cached delivery attempt store is not configured")
	}
	cacheKey, err := AttemptCacheKey(id)
	if err != nil {
		return core.DeliveryAttempt{}, err
	}

	attempt, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.DeliveryAttempt, error) {
		fetched, fetchErr := s.base.GetByID(ctx, id)
		if fetchErr != nil {
			return core.DeliveryAttempt{}, fetchErr
		}
		return cloneAttempt(fetched), nil
	})
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	return cloneAttempt(attempt), nil
}

func (s *CachedDeliveryAttemptStore) QueryByProviderAndWindow(
	ctx context.Context,
	provider string,
	since time.Time,
) ([]core.DeliveryAttempt, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached delivery attempt store is not configured")
	}
	return s.base.QueryByProviderAndWindow(ctx, provider, since)
}

func cloneAttempt(attempt core.DeliveryAttempt) core.DeliveryAttempt {
	cloned := attempt
	cloned.Payload = append([]byte(nil), attempt.Payload...)
	cloned.FailureLog = append([]core.AttemptFailure(nil), attempt.FailureLog...)
	cloned.NextRetryAt = cloneTimePointer(attempt.NextRetryAt)
	cloned.LastAttemptAt = cloneTimePointer(attempt.LastAttemptAt)
	return cloned
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

var _ core.DeliveryAttemptStore = (*CachedDeliveryAttemptStore)(nil)

package content

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

const cacheTTL = 5 * time.Minute

// cache keys for the public listings
const (
	keyProjects     = "archway:content:projects"
	keyServices     = "archway:content:services"
	keyTestimonials = "archway:content:testimonials"
	keyFAQs         = "archway:content:faqs"
)

// CachedStore wraps a Store with a Redis read-through cache for the
// public listing queries, which serve every page of the site. A nil
// redis client degrades to straight database reads. Cache failures are
// logged and ignored; the database stays the source of truth.
type CachedStore struct {
	*Store
	redis *redis.Client
}

func NewCachedStore(store *Store, redisClient *redis.Client) *CachedStore {
	return &CachedStore{Store: store, redis: redisClient}
}

func cachedList[T any](ctx context.Context, c *CachedStore, key string,
	load func(context.Context) ([]T, error)) ([]T, error) {
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
			var out []T
			if json.Unmarshal(data, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.redis != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := c.redis.Set(ctx, key, data, cacheTTL).Err(); err != nil {
				logger.Warn("content cache write failed", "key", key, "error", err)
			}
		}
	}
	return out, nil
}

// PublishedProjects lists published projects, cached.
func (c *CachedStore) PublishedProjects(ctx context.Context) ([]*Project, error) {
	return cachedList(ctx, c, keyProjects, func(ctx context.Context) ([]*Project, error) {
		return c.Store.ListProjects(ctx, true)
	})
}

// ActiveServices lists active services, cached.
func (c *CachedStore) ActiveServices(ctx context.Context) ([]*Service, error) {
	return cachedList(ctx, c, keyServices, func(ctx context.Context) ([]*Service, error) {
		return c.Store.ListServices(ctx, true)
	})
}

// PublishedTestimonials lists published testimonials, cached.
func (c *CachedStore) PublishedTestimonials(ctx context.Context) ([]*Testimonial, error) {
	return cachedList(ctx, c, keyTestimonials, func(ctx context.Context) ([]*Testimonial, error) {
		return c.Store.ListTestimonials(ctx, true)
	})
}

// PublishedFAQs lists published FAQs, cached.
func (c *CachedStore) PublishedFAQs(ctx context.Context) ([]*FAQ, error) {
	return cachedList(ctx, c, keyFAQs, func(ctx context.Context) ([]*FAQ, error) {
		return c.Store.ListFAQs(ctx, true)
	})
}

// Invalidate drops the cached listings after a write.
func (c *CachedStore) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, keyProjects, keyServices, keyTestimonials, keyFAQs).Err(); err != nil {
		logger.Warn("content cache invalidation failed", "error", err)
	}
}

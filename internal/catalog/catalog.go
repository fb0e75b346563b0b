// Package catalog manages products and categories and keeps a read-through cache of
// single products and the category list.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"gorm.io/gorm"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

const categoriesKey = "categories:all"

// Cache is the subset of the Redis cache the catalog reads through.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

type Conf struct {
	db    *gorm.DB
	cache Cache
}

// NewConf builds the catalog service. A nil cache disables caching.
func NewConf(db *gorm.DB, cache Cache) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db, cache: cache}, nil
}

func ProductKey(id uint) string {
	return "product:" + strconv.FormatUint(uint64(id), 10)
}

// InvalidateProducts drops cached entries for the given products. Failures are logged only.
func (c *Conf) InvalidateProducts(ctx context.Context, ids ...uint) {
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, ProductKey(id))
	}
	c.invalidate(ctx, keys...)
}

func (c *Conf) invalidate(ctx context.Context, keys ...string) {
	if c.cache == nil || len(keys) == 0 {
		return
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("cache invalidation failed", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.Any("keys", keys), slog.String(logkey.ERROR, err.Error()))
	}
}

func (c *Conf) cacheGet(ctx context.Context, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	found, err := c.cache.GetJSON(ctx, key, dst)
	if err != nil {
		slog.Warn("cache read failed", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String("key", key), slog.String(logkey.ERROR, err.Error()))
		return false
	}
	return found
}

func (c *Conf) cacheSet(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetJSON(ctx, key, v); err != nil {
		slog.Warn("cache write failed", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String("key", key), slog.String(logkey.ERROR, err.Error()))
	}
}

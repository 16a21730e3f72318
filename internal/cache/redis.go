// Package cache is the get/set-with-TTL boundary backed by redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache: miss")

type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	Timeout   time.Duration
}

type Cache struct {
	rdb *redis.Client
	ns  string
}

func New(o Options) *Cache {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	})
	ns := o.Namespace
	if ns == "" {
		ns = "analytics"
	}
	return &Cache{rdb: rdb, ns: ns}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return b, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) key(k string) string { return c.ns + ":" + k }

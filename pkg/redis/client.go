// Package redis wraps go-redis for the small key/value surface the session
// store needs. Keys are namespaced with a prefix so several tools can share
// one database.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Options 连接参数
type Options struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// Client Redis客户端包装器
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient 连接 Redis 并 ping 一次，连不上直接返回错误
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb, prefix: opts.Prefix}, nil
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Set 永久保存
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, c.key(key), value, 0).Err()
}

// GetBytes 键不存在时返回 nil, nil
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

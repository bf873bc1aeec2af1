// Package ledger records consumed confirmation token ids so that a token can
// be enforced as single-use. Entries expire together with the token, after
// which the signature check rejects the token on its own.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resolveit/apiserver/config"
)

// ErrAlreadyUsed is returned when a token id has been consumed before.
var ErrAlreadyUsed = errors.New("confirmation token already used")

const keyPrefix = "confirm:used:"

// RedisLedger stores consumed token ids in Redis.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLedger constructs a ledger from config and checks connectivity.
func NewRedisLedger(ctx context.Context, cfg config.RedisConfig) (*RedisLedger, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisLedgerFromClient(client), nil
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

// Consume marks tokenID as used until expiresAt. It returns ErrAlreadyUsed
// if the id was already recorded.
func (l *RedisLedger) Consume(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := l.client.SetNX(ctx, keyPrefix+tokenID, expiresAt.Unix(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyUsed
	}
	return nil
}

// Close closes the underlying client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

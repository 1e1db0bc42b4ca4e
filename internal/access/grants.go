package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GrantStore remembers which users verified the password of a locked ledger.
type GrantStore interface {
	Grant(ctx context.Context, userID, ledgerID uuid.UUID) error
	Has(ctx context.Context, userID, ledgerID uuid.UUID) (bool, error)
	RevokeLedger(ctx context.Context, ledgerID uuid.UUID) error
}

// RedisGrants keeps entry grants as expiring Redis keys.
type RedisGrants struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGrants(client *redis.Client, ttl time.Duration) *RedisGrants {
	return &RedisGrants{client: client, ttl: ttl}
}

var _ GrantStore = (*RedisGrants)(nil)

func grantKey(ledgerID, userID uuid.UUID) string {
	return fmt.Sprintf("ledger:%s:entry:%s", ledgerID, userID)
}

func (g *RedisGrants) Grant(ctx context.Context, userID, ledgerID uuid.UUID) error {
	return g.client.Set(ctx, grantKey(ledgerID, userID), "1", g.ttl).Err()
}

func (g *RedisGrants) Has(ctx context.Context, userID, ledgerID uuid.UUID) (bool, error) {
	n, err := g.client.Exists(ctx, grantKey(ledgerID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeLedger drops every grant of ledgerID, e.g. after a password change.
func (g *RedisGrants) RevokeLedger(ctx context.Context, ledgerID uuid.UUID) error {
	iter := g.client.Scan(ctx, 0, fmt.Sprintf("ledger:%s:entry:*", ledgerID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return g.client.Del(ctx, keys...).Err()
}

package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "settlement:obligations:version"
	bumpChannel     = "settlement.bump"
)

// ObligationCache caches per-customer obligation snapshots in Redis with a
// short TTL and a global version that every submission bumps. A nil cache
// (or nil client) degrades to calling the loader directly.
type ObligationCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewObligationCache instantiates the cache helper.
func NewObligationCache(client *redis.Client, ttl time.Duration) *ObligationCache {
	return &ObligationCache{client: client, ttl: ttl}
}

// Obligations loads a customer's snapshot from cache, populating it through
// the loader on miss. Concurrent loads for the same customer collapse into
// one ledger call.
func (c *ObligationCache) Obligations(ctx context.Context, customerID int64, loader func(context.Context) ([]CreditObligation, error)) ([]CreditObligation, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, customerID)
	if err != nil {
		return nil, err
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var obligations []CreditObligation
		if err := json.Unmarshal(payload, &obligations); err == nil {
			return obligations, nil
		}
		// corrupt entry, fall through to reload
	} else if err != redis.Nil {
		return nil, err
	}

	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		obligations, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(obligations)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return obligations, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]CreditObligation), nil
	}
}

// Bump invalidates all cached snapshots by incrementing the global version
// and publishing the change for other instances.
func (c *ObligationCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications so this
// instance picks up invalidations published by others.
func (c *ObligationCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func (c *ObligationCache) buildKey(ctx context.Context, customerID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("settlement:obligations:%d:%d", customerID, ver), nil
}

func (c *ObligationCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

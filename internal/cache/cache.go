package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"brandhub/backend/internal/brave"
	"brandhub/backend/internal/research"
)

const keyPrefix = "brandhub:research:v1:"

// ResultCache holds finished sessions keyed by normalized query and tier.
type ResultCache interface {
	Get(ctx context.Context, query string, tier brave.Tier) (*research.Session, bool, error)
	Set(ctx context.Context, session *research.Session) error
	Backend() string
}

// Key normalizes case and whitespace so trivially different phrasings of the
// same question share an entry.
func Key(query string, tier brave.Tier) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(string(tier) + "\x00" + normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to rawURL and verifies the server answers PING.
func NewRedis(ctx context.Context, rawURL string, ttl time.Duration) (ResultCache, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, ttl), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration) ResultCache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Backend() string {
	return "redis"
}

func (c *redisCache) Get(ctx context.Context, query string, tier brave.Tier) (*research.Session, bool, error) {
	raw, err := c.client.Get(ctx, Key(query, tier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached session: %w", err)
	}
	var session research.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, false, fmt.Errorf("decode cached session: %w", err)
	}
	return &session, true, nil
}

// Set stores only completed sessions; partial and failed outcomes are worth
// retrying.
func (c *redisCache) Set(ctx context.Context, session *research.Session) error {
	if session == nil || session.Status != research.StatusCompleted {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := Key(session.Query, research.TierFor(session.UseProModel))
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached session: %w", err)
	}
	return nil
}

type noopCache struct{}

// NewNoop returns a cache that never hits.
func NewNoop() ResultCache {
	return noopCache{}
}

func (noopCache) Backend() string { return "none" }

func (noopCache) Get(context.Context, string, brave.Tier) (*research.Session, bool, error) {
	return nil, false, nil
}

func (noopCache) Set(context.Context, *research.Session) error { return nil }

package cache

import (
	"context"
	"encoding/json"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/opencdp/profile-engine/domain"
)

// RedisTier is the shared distributed cache tier.
type RedisTier struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTier(client *redislib.Client, ttl time.Duration) *RedisTier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisTier{
		client: client,
		prefix: "profile:",
		ttl:    ttl,
	}
}

func (t *RedisTier) Get(ctx context.Context, key string) (*domain.Profile, error) {
	result, err := t.client.Get(ctx, t.prefix+key).Result()
	if err != nil {
		if err == redislib.Nil {
			return nil, nil
		}
		return nil, err
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(result), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (t *RedisTier) Set(ctx context.Context, key string, profile *domain.Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, t.prefix+key, payload, t.ttl).Err()
}

func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.prefix+key).Err()
}

func (t *RedisTier) Clear(ctx context.Context) error {
	iter := t.client.Scan(ctx, 0, t.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := t.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

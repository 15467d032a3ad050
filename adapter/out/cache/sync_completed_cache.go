// Package cache implements the short-lived Redis feedback cache.
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

const completedKeyPrefix = "mailsync:completed:"

// CompletedCacheAdapter keeps recently completed modifier records in Redis
// under a TTL. The per-account set uses the same TTL as its members, so the
// whole trail ages out together after the last completion.
type CompletedCacheAdapter struct {
	client *redis.Client
}

var _ out.CompletedCache = (*CompletedCacheAdapter)(nil)

func NewCompletedCacheAdapter(client *redis.Client) *CompletedCacheAdapter {
	return &CompletedCacheAdapter{client: client}
}

func recordKey(accountID, recordID string) string {
	return completedKeyPrefix + accountID + ":" + recordID
}

func accountKey(accountID string) string {
	return completedKeyPrefix + accountID + ":ids"
}

func (c *CompletedCacheAdapter) Put(ctx context.Context, record *domain.ModifierRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return apperr.BadPayload("encode completed record: " + err.Error())
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, recordKey(record.AccountID, record.ID), data, ttl)
	pipe.SAdd(ctx, accountKey(record.AccountID), record.ID)
	pipe.Expire(ctx, accountKey(record.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.DatabaseError("cache completed record", err)
	}
	return nil
}

func (c *CompletedCacheAdapter) Recent(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error) {
	ids, err := c.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil && err != redis.Nil {
		return nil, apperr.DatabaseError("list completed ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(accountID, id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.DatabaseError("load completed records", err)
	}

	var records []*domain.ModifierRecord
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Member outlived its record; drop it from the set.
			expired = append(expired, ids[i])
			continue
		}
		var rec domain.ModifierRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			expired = append(expired, ids[i])
			continue
		}
		records = append(records, &rec)
	}
	if len(expired) > 0 {
		c.client.SRem(ctx, accountKey(accountID), expired...)
	}
	return records, nil
}

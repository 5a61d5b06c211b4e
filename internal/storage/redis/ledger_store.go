package redis

import (
	"context"

	"github.com/goodtune/playgate/internal/storage"
	"github.com/redis/go-redis/v9"
)

type ledgerStore struct {
	client *redis.Client
}

// GetRecord retrieves the playtime record for a player
func (s *ledgerStore) GetRecord(ctx context.Context, key storage.LedgerKey) (*storage.PlaytimeRecord, error) {
	data, err := s.client.HGetAll(ctx, ledgerKey(key)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return storage.ParseRecord(data)
}

// PutRecord overwrites the playtime record for a player
func (s *ledgerStore) PutRecord(ctx context.Context, key storage.LedgerKey, record storage.PlaytimeRecord) error {
	script := redis.NewScript(putRecordScript)

	keys := []string{ledgerKey(key), usageKey(record.Date, key.ApplicationID)}
	args := []interface{}{
		record.Seconds,
		record.Date,
		key.Credential,
		usageRetentionSeconds,
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// ListDailyUsage returns every player's recorded total for a date
func (s *ledgerStore) ListDailyUsage(ctx context.Context, date, applicationID string) ([]storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, usageKey(date, applicationID)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return []storage.DailyUsage{}, nil
	}

	return parseDailyUsage(date, applicationID, data)
}

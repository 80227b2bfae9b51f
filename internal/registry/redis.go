package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fsec/internal/logging"
)

// RedisStore keeps records as JSON in one hash and their update times in a
// sorted set, so Refresh can range over what changed.
type RedisStore struct {
	*Index
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisStore(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url %s: %w", logging.SanitizeConnectionString(redisURL), err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", logging.SanitizeConnectionString(redisURL), err)
	}
	return NewRedisStoreWithClient(client, logger), nil
}

func NewRedisStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{Index: NewIndex(), client: client, prefix: "fsec:operators", logger: logger}
}

func (s *RedisStore) recordsKey() string { return s.prefix + ":records" }
func (s *RedisStore) updatedKey() string { return s.prefix + ":updated" }

func (s *RedisStore) Load(ctx context.Context) error {
	raw, err := s.client.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	recs := make([]Record, 0, len(raw))
	for key, blob := range raw {
		rec, err := decodeRecord(key, blob)
		if err != nil {
			s.logger.Warn("skipping malformed registry record", zap.String("key", key), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	s.replace(recs)
	return nil
}

// Save writes all records and removals in one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context) error {
	recs := s.all()
	removed := s.pendingRemovals()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range recs {
			if rec.UpdatedAt.IsZero() {
				rec.UpdatedAt = time.Now()
			}
			blob, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, s.recordsKey(), rec.NormalizedName, blob)
			pipe.ZAdd(ctx, s.updatedKey(), redis.Z{Score: float64(rec.UpdatedAt.UnixMicro()), Member: rec.NormalizedName})
		}
		if len(removed) > 0 {
			members := make([]any, 0, len(removed))
			for _, k := range removed {
				members = append(members, k)
			}
			pipe.HDel(ctx, s.recordsKey(), removed...)
			pipe.ZRem(ctx, s.updatedKey(), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	s.clearRemovals()
	return nil
}

func (s *RedisStore) Refresh(ctx context.Context) error {
	since := s.newest()
	keys, err := s.client.ZRangeByScore(ctx, s.updatedKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	blobs, err := s.client.HMGet(ctx, s.recordsKey(), keys...).Result()
	if err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}
	recs := make([]Record, 0, len(blobs))
	for i, v := range blobs {
		blob, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord(keys[i], blob)
		if err != nil {
			s.logger.Warn("skipping malformed registry record", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	n := s.merge(recs)
	s.logger.Debug("registry refreshed", zap.Int("merged", n))
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(key, blob string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return Record{}, err
	}
	if rec.NormalizedName == "" {
		rec.NormalizedName = key
	}
	return rec, nil
}

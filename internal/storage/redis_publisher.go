package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/config"
)

const historyLength = 100

type redisPublisher struct {
	client *redis.Client
	keys   keySet
	ttl    time.Duration
}

func NewRedisClient(cfg *config.RedisConfig, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.GetRedisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Error("failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Connected to Redis", "addr", cfg.Addr)
	return client, nil
}

// NewRedisPublisher publishes reports on <prefix>:cycles and keeps the latest
// report plus a bounded history list.
func NewRedisPublisher(client *redis.Client, prefix string, ttl time.Duration) ReportPublisher {
	return &redisPublisher{client: client, keys: newKeySet(prefix), ttl: ttl}
}

func (r *redisPublisher) Publish(ctx context.Context, report *domain.CycleReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle report: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keys.latest(), data, r.ttl)
	pipe.LPush(ctx, r.keys.history(), data)
	pipe.LTrim(ctx, r.keys.history(), 0, historyLength-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keys.history(), r.ttl)
	}
	pipe.Publish(ctx, r.keys.channel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish cycle report: %w", err)
	}
	return nil
}

func (r *redisPublisher) Latest(ctx context.Context) (*domain.CycleReport, error) {
	data, err := r.client.Get(ctx, r.keys.latest()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	return decodeReport(data)
}

func (r *redisPublisher) Recent(ctx context.Context, limit int) ([]*domain.CycleReport, error) {
	if limit <= 0 || limit > historyLength {
		limit = historyLength
	}

	items, err := r.client.LRange(ctx, r.keys.history(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE failed: %w", err)
	}

	reports := make([]*domain.CycleReport, 0, len(items))
	for _, item := range items {
		report, err := decodeReport([]byte(item))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func decodeReport(data []byte) (*domain.CycleReport, error) {
	var report domain.CycleReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode cycle report: %w", err)
	}
	return &report, nil
}

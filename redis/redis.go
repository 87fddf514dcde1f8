package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"robot-console/config"
	"robot-console/models"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisClient(cfg *config.Config, logger *slog.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	// Test connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully", "addr", rdb.Options().Addr)
	return NewRobotCache(rdb, cfg.CacheTTL, logger), nil
}

// NewRobotCache wraps an existing client.
func NewRobotCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisClient {
	return &RedisClient{
		client: rdb,
		ttl:    ttl,
		logger: logger.With("component", "robot_cache"),
	}
}

// GetRobot returns the cached robot, or nil on a miss.
func (r *RedisClient) GetRobot(ctx context.Context, robotID int64) (*models.Robot, error) {
	var robot models.Robot
	ok, err := r.get(ctx, Keys.RobotDetail(robotID), &robot)
	if err != nil || !ok {
		return nil, err
	}
	return &robot, nil
}

func (r *RedisClient) SetRobot(ctx context.Context, robot *models.Robot) error {
	return r.set(ctx, Keys.RobotDetail(robot.ID), robot)
}

// GetList returns the cached listing page for filterKey, or nil on a miss.
func (r *RedisClient) GetList(ctx context.Context, filterKey string) (*models.RobotList, error) {
	var list models.RobotList
	ok, err := r.get(ctx, Keys.RobotList(filterKey), &list)
	if err != nil || !ok {
		return nil, err
	}
	return &list, nil
}

// SetList caches a listing page and records its key for invalidation.
func (r *RedisClient) SetList(ctx context.Context, filterKey string, list *models.RobotList) error {
	key := Keys.RobotList(filterKey)
	if err := r.set(ctx, key, list); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, RobotListIndexKey, key)
	pipe.Expire(ctx, RobotListIndexKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index list cache key: %w", err)
	}
	return nil
}

// InvalidateRobot drops the robot's detail entry and every cached listing.
func (r *RedisClient) InvalidateRobot(ctx context.Context, robotID int64) error {
	if err := r.client.Del(ctx, Keys.RobotDetail(robotID)).Err(); err != nil {
		return fmt.Errorf("failed to delete robot cache: %w", err)
	}
	return r.InvalidateLists(ctx)
}

// InvalidateLists drops every cached listing page.
func (r *RedisClient) InvalidateLists(ctx context.Context) error {
	keys, err := r.client.SMembers(ctx, RobotListIndexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read list cache index: %w", err)
	}
	keys = append(keys, RobotListIndexKey)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete list cache: %w", err)
	}
	r.logger.Debug("List cache invalidated", "keys", len(keys)-1)
	return nil
}

func (r *RedisClient) get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		// 손상된 항목은 캐시 미스로 처리
		r.logger.Warn("Discarding unreadable cache entry", "key", key, slog.Any("error", err))
		r.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (r *RedisClient) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s to Redis: %w", key, err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping checks that Redis answers.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

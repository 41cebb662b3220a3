package consume

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"cmdgate/errors"
	"cmdgate/logging"
)

// RedisJournal 基于 Redis 的完成日志
//
// 每条完成记录一个带 TTL 的键，SETNX 写入天然幂等，
// 过期回收交给 Redis 自身。适用于多实例消费者共享去重状态的部署。
type RedisJournal struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
	logger    logging.Logger
}

// RedisJournalConfig Redis 完成日志配置
type RedisJournalConfig struct {
	// KeyPrefix 键前缀（默认："cmdgate:journal:"）
	KeyPrefix string

	// TTL 完成记录的保留时间（默认：24小时）
	TTL time.Duration

	// Logger 组件日志
	Logger logging.Logger
}

// DefaultRedisJournalConfig 默认配置
func DefaultRedisJournalConfig() *RedisJournalConfig {
	return &RedisJournalConfig{
		KeyPrefix: "cmdgate:journal:",
		TTL:       24 * time.Hour,
	}
}

// NewRedisJournal 创建 Redis 完成日志
func NewRedisJournal(client redis.Cmdable, config *RedisJournalConfig) (*RedisJournal, error) {
	if client == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "redis client cannot be nil")
	}
	if config == nil {
		config = DefaultRedisJournalConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cmdgate:journal:"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = logging.ComponentLogger("consume.journal.redis")
	}
	return &RedisJournal{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    config.Logger,
	}, nil
}

// IsCompleted 判断命令是否已记录为完成
func (j *RedisJournal) IsCompleted(ctx context.Context, commandID string) (bool, error) {
	count, err := j.client.Exists(ctx, j.keyPrefix+commandID).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeCache, "failed to query journal")
	}
	return count > 0, nil
}

// MarkCompleted 记录命令完成（幂等）
func (j *RedisJournal) MarkCompleted(ctx context.Context, commandID string) error {
	if err := j.client.SetNX(ctx, j.keyPrefix+commandID, time.Now().UTC().Format(time.RFC3339Nano), j.ttl).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeCache, "failed to insert journal entry")
	}
	return nil
}

var _ ICompletionJournal = (*RedisJournal)(nil)

package publish

import (
	"context"

	"github.com/redis/go-redis/v9"

	"cmdgate/consume"
	"cmdgate/errors"
	"cmdgate/logging"
)

// RedisStreamsPublisher 基于 Redis Streams 的结果通知发布器
//
// 每个结果主题对应一个 Stream，通知以 XADD 追加，
// 消费侧（通常是命令的发起方）用消费者组读取。
type RedisStreamsPublisher struct {
	client       redis.Cmdable
	streamPrefix string
	maxLen       int64
	logger       logging.Logger
}

// RedisStreamsPublisherConfig Redis Streams 发布器配置
type RedisStreamsPublisherConfig struct {
	// StreamPrefix Stream 键前缀（默认："results:"）
	StreamPrefix string

	// MaxLen Stream 近似最大长度，0 表示不裁剪
	MaxLen int64

	// Logger 组件日志
	Logger logging.Logger
}

// DefaultRedisStreamsPublisherConfig 默认配置
func DefaultRedisStreamsPublisherConfig() *RedisStreamsPublisherConfig {
	return &RedisStreamsPublisherConfig{
		StreamPrefix: "results:",
		MaxLen:       100000,
	}
}

// NewRedisStreamsPublisher 创建 Redis Streams 结果通知发布器
func NewRedisStreamsPublisher(client redis.Cmdable, config *RedisStreamsPublisherConfig) (*RedisStreamsPublisher, error) {
	if client == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "redis client cannot be nil")
	}
	if config == nil {
		config = DefaultRedisStreamsPublisherConfig()
	}
	if config.StreamPrefix == "" {
		config.StreamPrefix = "results:"
	}
	if config.Logger == nil {
		config.Logger = logging.ComponentLogger("publish.redis")
	}
	return &RedisStreamsPublisher{
		client:       client,
		streamPrefix: config.StreamPrefix,
		maxLen:       config.MaxLen,
		logger:       config.Logger,
	}, nil
}

// Publish 将结果通知追加到主题对应的 Stream
func (p *RedisStreamsPublisher) Publish(ctx context.Context, notification *consume.ResultNotification, topic string) error {
	data, err := encodeNotification(notification)
	if err != nil {
		return err
	}

	stream := p.streamPrefix + topic
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"body":       data,
			"command_id": notification.CommandID,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodePublish, "failed to publish notification")
	}

	p.logger.Debug(ctx, "result notification published",
		logging.String("command_id", notification.CommandID),
		logging.String("stream", stream))
	return nil
}

var _ consume.IResultPublisher = (*RedisStreamsPublisher)(nil)

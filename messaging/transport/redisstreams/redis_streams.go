package redisstreams

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cmdgate/logging"
	"cmdgate/messaging"
)

// client captures the subset of go-redis commands we rely on (for easier testing).
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config describes how the Redis Streams queue client should connect/behave.
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	GroupName    string
	ConsumerName string
	BlockTimeout time.Duration
	ReadCount    int64
	Logger       logging.Logger

	// VisibilityTimeout 未确认消息的最小空闲时间，超过后由 XAUTOCLAIM 重新认领
	// <=0 时使用默认 30s
	VisibilityTimeout time.Duration

	// ClaimInterval 重新认领扫描间隔（<=0 时使用默认 5s）
	ClaimInterval time.Duration

	// 订阅错误退避
	MinReadBackoff time.Duration // 默认 100ms
	MaxReadBackoff time.Duration // 默认 5s
}

// Client is a messaging.IQueueClient backed by Redis Streams consumer groups.
//
// 手动确认语义由消费组的 PEL（pending entries list）承载：
// XREADGROUP 读到的消息进入 PEL，回执通过 XACK 移除；
// 超过 VisibilityTimeout 仍未确认的消息由 XAUTOCLAIM 重新投递。
type Client struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers map[string]messaging.DeliveryHandler

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	redelivered int64
}

// NewClient constructs a Redis Streams queue client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "commands:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "cmdgate"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 5 * time.Second
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}

	var cl client
	var own bool
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		options := &redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB}
		cl = redis.NewClient(options)
		own = true
	}
	if cl == nil {
		return nil, errors.New("redis client not configured")
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}

	return &Client{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
		handlers:  make(map[string]messaging.DeliveryHandler),
	}, nil
}

// Publish 向主题对应的 Stream 写入一条消息（生产者侧）
func (c *Client) Publish(ctx context.Context, topic string, body []byte) error {
	_, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streamName(topic),
		Values: map[string]interface{}{"body": body},
	}).Result()
	return err
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, handler messaging.DeliveryHandler) error {
	if topic == "" {
		return errors.New("topic cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.handlers[topic]; exists {
		return errors.New("topic " + topic + " already subscribed")
	}
	c.handlers[topic] = handler
	if c.running {
		c.startConsumerLocked(topic, handler)
	}
	return nil
}

// Start 启动客户端
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("redis queue client already running")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true
	for topic, handler := range c.handlers {
		c.startConsumerLocked(topic, handler)
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		if c.ownClient {
			return c.client.Close()
		}
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	if c.ownClient {
		return c.client.Close()
	}
	return nil
}

// Stats 获取统计信息
func (c *Client) Stats() messaging.QueueStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	return messaging.QueueStats{
		Running:     c.running,
		Topics:      topics,
		Redelivered: c.redelivered,
	}
}

// startConsumerLocked 为主题启动读取与重新认领协程（须持有写锁）
func (c *Client) startConsumerLocked(topic string, handler messaging.DeliveryHandler) {
	c.wg.Add(2)
	go c.readLoop(topic, handler)
	go c.claimLoop(topic, handler)
}

// readLoop 持续 XREADGROUP 读取新消息
func (c *Client) readLoop(topic string, handler messaging.DeliveryHandler) {
	defer c.wg.Done()

	stream := c.streamName(topic)
	if err := c.ensureGroup(stream); err != nil {
		c.logger.Error(c.ctx, "create consumer group failed",
			logging.String("stream", stream),
			logging.Error(err))
		return
	}

	backoff := c.cfg.MinReadBackoff
	for {
		if c.ctx.Err() != nil {
			return
		}

		streams, err := c.client.XReadGroup(c.ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.GroupName,
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    c.cfg.ReadCount,
			Block:    c.cfg.BlockTimeout,
		}).Result()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, redis.Nil) {
				backoff = c.cfg.MinReadBackoff
				continue
			}
			c.logger.Warn(c.ctx, "read group failed, backing off",
				logging.String("stream", stream),
				logging.Duration("backoff", backoff),
				logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-c.ctx.Done():
				return
			}
			backoff = min(backoff*2, c.cfg.MaxReadBackoff)
			continue
		}

		backoff = c.cfg.MinReadBackoff
		for _, s := range streams {
			for _, entry := range s.Messages {
				c.dispatch(topic, stream, entry, handler)
			}
		}
	}
}

// claimLoop 周期性认领超时未确认的消息
func (c *Client) claimLoop(topic string, handler messaging.DeliveryHandler) {
	defer c.wg.Done()

	stream := c.streamName(topic)
	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		claimed, _, err := c.client.XAutoClaim(c.ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.cfg.GroupName,
			Consumer: c.cfg.ConsumerName,
			MinIdle:  c.cfg.VisibilityTimeout,
			Start:    "0-0",
			Count:    c.cfg.ReadCount,
		}).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
				continue
			}
			c.logger.Warn(c.ctx, "auto claim failed",
				logging.String("stream", stream),
				logging.Error(err))
			continue
		}

		for _, entry := range claimed {
			c.mu.Lock()
			c.redelivered++
			c.mu.Unlock()
			c.dispatch(topic, stream, entry, handler)
		}
	}
}

// dispatch 将一条 Stream 记录交付给处理函数
func (c *Client) dispatch(topic, stream string, entry redis.XMessage, handler messaging.DeliveryHandler) {
	body, err := decodeBody(entry)
	if err != nil {
		c.logger.Warn(c.ctx, "malformed stream entry, acked and skipped",
			logging.String("stream", stream),
			logging.String("entry_id", entry.ID),
			logging.Error(err))
		_ = c.client.XAck(c.ctx, stream, c.cfg.GroupName, entry.ID).Err()
		return
	}

	delivery := messaging.Delivery{
		Topic: topic,
		Body:  body,
		Receipt: &receipt{
			client:  c.client,
			ctx:     c.ctx,
			stream:  stream,
			group:   c.cfg.GroupName,
			entryID: entry.ID,
		},
	}
	if err := handler(c.ctx, delivery); err != nil {
		// 不确认，消息停留在 PEL 中等待重新认领
		c.logger.Warn(c.ctx, "delivery handler failed, message left in PEL",
			logging.String("stream", stream),
			logging.String("entry_id", entry.ID),
			logging.Error(err))
	}
}

func (c *Client) ensureGroup(stream string) error {
	err := c.client.XGroupCreateMkStream(c.ctx, stream, c.cfg.GroupName, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (c *Client) streamName(topic string) string {
	return c.cfg.StreamPrefix + topic
}

// decodeBody 从 Stream 记录中取出消息体
func decodeBody(entry redis.XMessage) ([]byte, error) {
	raw, ok := entry.Values["body"]
	if !ok {
		return nil, errors.New("stream entry missing body field")
	}
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, errors.New("stream entry body has unexpected type")
	}
}

func isBusyGroup(err error) bool {
	return err != nil && redisBusyGroup(err.Error())
}

func redisBusyGroup(msg string) bool {
	return len(msg) >= 9 && msg[:9] == "BUSYGROUP"
}

// receipt Redis Streams 待确认回执（XACK 移除 PEL 记录）
type receipt struct {
	client  client
	ctx     context.Context
	stream  string
	group   string
	entryID string

	mu   sync.Mutex
	used bool
}

// Ack 实现 messaging.IReceipt 接口
func (r *receipt) Ack() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used {
		return errors.New("receipt already acknowledged")
	}
	r.used = true
	return r.client.XAck(r.ctx, r.stream, r.group, r.entryID).Err()
}

// 接口实现检查
var _ messaging.IQueueClient = (*Client)(nil)

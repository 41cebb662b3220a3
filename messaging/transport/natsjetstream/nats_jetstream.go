package natsjetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"cmdgate/logging"
	"cmdgate/messaging"
)

// Config configures the JetStream queue client.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAckPending int
	Logger        logging.Logger
	Conn          *nats.Conn

	// 可选：流参数
	Retention string // workqueue|limits|interest（默认 workqueue）
	MaxBytes  int64  // 0 表示不设置
	Replicas  int    // 0 表示默认
}

// Client implements messaging.IQueueClient on top of NATS JetStream.
//
// 与事件总线式的消费不同，这里使用 ManualAck：
// 消息交付给 DeliveryHandler 后不自动确认，由回执（包装 *nats.Msg）
// 在完成关联器处理后显式 Ack。AckWait 内未确认的消息由 JetStream 重投递。
type Client struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers map[string]messaging.DeliveryHandler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

// NewClient builds a JetStream queue client.
func NewClient(cfg Config) *Client {
	if cfg.Stream == "" {
		cfg.Stream = "CMDGATE"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "commands."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "cmdgate-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string]messaging.DeliveryHandler),
		subs:     make(map[string]*nats.Subscription),
	}
}

// Publish 向主题写入一条消息（生产者侧，主要用于联调与测试）
func (c *Client) Publish(ctx context.Context, topic string, body []byte) error {
	c.mu.RLock()
	js := c.js
	running := c.running
	c.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats queue client not running")
	}
	_, err := js.Publish(c.subjectName(topic), body)
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
		if err := c.subscribeLocked(topic); err != nil {
			delete(c.handlers, topic)
			return err
		}
	}
	return nil
}

// Start 启动客户端
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("nats queue client already running")
	}
	if err := c.ensureConnection(); err != nil {
		return err
	}
	if err := c.ensureStream(); err != nil {
		return err
	}
	for topic := range c.handlers {
		if err := c.subscribeLocked(topic); err != nil {
			return err
		}
	}
	c.running = true
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		if c.ownsConn && c.conn != nil {
			c.conn.Close()
		}
		return nil
	}
	c.running = false
	for topic, sub := range c.subs {
		_ = sub.Drain()
		delete(c.subs, topic)
	}
	if c.ownsConn && c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
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
		Running: c.running,
		Topics:  topics,
	}
}

func (c *Client) ensureConnection() error {
	if c.conn != nil && c.js != nil {
		return nil
	}
	if c.cfg.Conn != nil {
		c.conn = c.cfg.Conn
	} else {
		if c.cfg.URL == "" {
			c.cfg.URL = nats.DefaultURL
		}
		conn, err := nats.Connect(c.cfg.URL)
		if err != nil {
			return err
		}
		c.conn = conn
		c.ownsConn = true
	}
	js, err := c.conn.JetStream()
	if err != nil {
		return err
	}
	c.js = js
	return nil
}

func (c *Client) ensureStream() error {
	_, err := c.js.StreamInfo(c.cfg.Stream)
	if err == nil {
		return nil
	}
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	// 组装流配置
	retention := nats.WorkQueuePolicy
	switch strings.ToLower(c.cfg.Retention) {
	case "limits":
		retention = nats.LimitsPolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.SubjectPrefix + ">"},
		Retention: retention,
	}
	if c.cfg.MaxBytes > 0 {
		sc.MaxBytes = c.cfg.MaxBytes
	}
	if c.cfg.Replicas > 0 {
		sc.Replicas = c.cfg.Replicas
	}
	_, err = c.js.AddStream(sc)
	return err
}

func (c *Client) subscribeLocked(topic string) error {
	if _, exists := c.subs[topic]; exists {
		return nil
	}
	subject := c.subjectName(topic)
	durable := c.cfg.DurablePrefix + topic
	sub, err := c.js.QueueSubscribe(subject, durable, c.handleMessage(topic),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(c.cfg.AckWait),
		nats.MaxAckPending(c.cfg.MaxAckPending))
	if err != nil {
		return err
	}
	c.subs[topic] = sub
	return nil
}

func (c *Client) handleMessage(topic string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		c.mu.RLock()
		handler := c.handlers[topic]
		c.mu.RUnlock()
		if handler == nil {
			return
		}

		delivery := messaging.Delivery{
			Topic:   topic,
			Body:    msg.Data,
			Receipt: &receipt{msg: msg},
		}
		if err := handler(context.Background(), delivery); err != nil {
			// 不确认，等待 AckWait 后由 JetStream 重投递
			c.logger.Warn(context.Background(), "delivery handler failed, message left unacked",
				logging.String("topic", topic),
				logging.Error(err))
		}
	}
}

func (c *Client) subjectName(topic string) string {
	return c.cfg.SubjectPrefix + topic
}

// receipt JetStream 待确认回执，包装原始消息
type receipt struct {
	msg  *nats.Msg
	used bool
	mu   sync.Mutex
}

// Ack 实现 messaging.IReceipt 接口
func (r *receipt) Ack() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used {
		return errors.New("receipt already acknowledged")
	}
	r.used = true
	return r.msg.Ack()
}

// 接口实现检查
var _ messaging.IQueueClient = (*Client)(nil)

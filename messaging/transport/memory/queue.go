// Package memory 提供基于内存队列的手动确认消息客户端
// 适用于单机部署、开发环境和测试场景
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cmdgate/logging"
	"cmdgate/messaging"
)

// Config 内存队列配置
type Config struct {
	// QueueSize 队列容量（<=0 时使用默认 1000）
	QueueSize int

	// WorkerCount Worker 数量（<=0 时使用默认 4）
	WorkerCount int

	// VisibilityTimeout 可见性超时：投递后超过该时长仍未确认的消息会被重投递
	// <=0 时使用默认 30s
	VisibilityTimeout time.Duration

	// SweepInterval 重投递扫描间隔（<=0 时使用默认 1s）
	SweepInterval time.Duration

	// Logger 组件日志，空则基于全局 Logger 派生
	Logger logging.Logger
}

// entry 单条投递记录
type entry struct {
	id          uint64
	topic       string
	body        []byte
	deliveredAt time.Time
	attempts    int
}

// MemoryQueue 内存队列客户端
//
// 特性:
//   - Worker 池模式并发投递
//   - 手动确认：消息投递给处理器后进入 pending 集合，只有 Ack 才会移除
//   - 可见性超时：超时未确认的消息被重新入队（模拟真实队列的重投递）
//   - 并发安全
//
// 使用场景:
//   - 单机部署与本地联调
//   - 消费侧核心逻辑的测试（重复投递、未确认重投等场景都可构造）
type MemoryQueue struct {
	cfg    Config
	logger logging.Logger

	handlers map[string]messaging.DeliveryHandler
	queue    chan *entry
	pending  map[uint64]*entry

	nextID      atomic.Uint64
	redelivered atomic.Int64

	mutex    sync.RWMutex
	running  bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryQueue 创建内存队列客户端
func NewMemoryQueue(cfg Config) *MemoryQueue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.memory")
	}

	return &MemoryQueue{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string]messaging.DeliveryHandler),
		queue:    make(chan *entry, cfg.QueueSize),
		pending:  make(map[uint64]*entry),
		stop:     make(chan struct{}),
	}
}

// Publish 向主题投递一条消息（生产者侧，主要用于本地联调与测试）
func (q *MemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mutex.RLock()
	running := q.running
	q.mutex.RUnlock()

	if !running {
		return fmt.Errorf("memory queue is not running")
	}

	e := &entry{
		id:    q.nextID.Add(1),
		topic: topic,
		body:  body,
	}

	select {
	case q.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("message queue is full")
	}
}

// Subscribe 订阅主题
//
// 每个主题只允许一个处理函数，重复订阅返回错误。
func (q *MemoryQueue) Subscribe(topic string, handler messaging.DeliveryHandler) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if _, exists := q.handlers[topic]; exists {
		return fmt.Errorf("topic %s already subscribed", topic)
	}
	q.handlers[topic] = handler
	return nil
}

// Start 启动客户端
//
// 启动 Worker 池与重投递扫描协程。
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.running {
		return fmt.Errorf("memory queue is already running")
	}
	q.running = true

	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	q.wg.Add(1)
	go q.sweeper()

	return nil
}

// Close 关闭客户端
func (q *MemoryQueue) Close() error {
	q.mutex.Lock()
	if !q.running {
		q.mutex.Unlock()
		return fmt.Errorf("memory queue is not running")
	}
	q.running = false
	q.mutex.Unlock()

	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	return nil
}

// Stats 获取统计信息
func (q *MemoryQueue) Stats() messaging.QueueStats {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	topics := make([]string, 0, len(q.handlers))
	for topic := range q.handlers {
		topics = append(topics, topic)
	}

	return messaging.QueueStats{
		Running:     q.running,
		Topics:      topics,
		QueueSize:   q.cfg.QueueSize,
		QueueDepth:  len(q.queue),
		WorkerCount: q.cfg.WorkerCount,
		Pending:     len(q.pending),
		Redelivered: q.redelivered.Load(),
	}
}

// worker 工作协程：从队列取出消息并投递给订阅的处理函数
func (q *MemoryQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stop:
			return
		case e := <-q.queue:
			q.deliver(ctx, e)
		}
	}
}

// deliver 投递单条消息
//
// 投递前先登记到 pending 集合，处理器通过回执 Ack 后才会移除；
// 处理器返回错误时消息保留在 pending 中，等待可见性超时后重投递。
func (q *MemoryQueue) deliver(ctx context.Context, e *entry) {
	q.mutex.RLock()
	handler, exists := q.handlers[e.topic]
	q.mutex.RUnlock()

	if !exists {
		q.logger.Warn(ctx, "no handler for topic, message dropped",
			logging.String("topic", e.topic))
		return
	}

	q.mutex.Lock()
	e.deliveredAt = time.Now()
	e.attempts++
	q.pending[e.id] = e
	q.mutex.Unlock()

	delivery := messaging.Delivery{
		Topic:   e.topic,
		Body:    e.body,
		Receipt: &receipt{queue: q, id: e.id},
	}

	if err := handler(ctx, delivery); err != nil {
		q.logger.Warn(ctx, "delivery handler failed, message stays pending",
			logging.String("topic", e.topic),
			logging.Int("attempts", e.attempts),
			logging.Error(err))
	}
}

// sweeper 重投递扫描协程
func (q *MemoryQueue) sweeper() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.redeliverExpired()
		}
	}
}

// redeliverExpired 将可见性超时的 pending 消息重新入队
func (q *MemoryQueue) redeliverExpired() {
	now := time.Now()

	q.mutex.Lock()
	expired := make([]*entry, 0)
	for id, e := range q.pending {
		if now.Sub(e.deliveredAt) > q.cfg.VisibilityTimeout {
			expired = append(expired, e)
			delete(q.pending, id)
		}
	}
	q.mutex.Unlock()

	for _, e := range expired {
		select {
		case q.queue <- e:
			q.redelivered.Add(1)
		default:
			// 队列已满，放回 pending 等待下一轮
			q.mutex.Lock()
			q.pending[e.id] = e
			q.mutex.Unlock()
		}
	}
}

// ack 确认一条投递
func (q *MemoryQueue) ack(id uint64) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if _, exists := q.pending[id]; !exists {
		return fmt.Errorf("receipt already acknowledged or expired")
	}
	delete(q.pending, id)
	return nil
}

// receipt 内存队列的待确认回执
type receipt struct {
	queue *MemoryQueue
	id    uint64
}

// Ack 实现 messaging.IReceipt 接口
func (r *receipt) Ack() error {
	return r.queue.ack(r.id)
}

// 接口实现检查
var _ messaging.IQueueClient = (*MemoryQueue)(nil)

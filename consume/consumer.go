package consume

import (
	"context"
	"sync/atomic"

	"cmdgate/codec"
	"cmdgate/domain"
	"cmdgate/errors"
	"cmdgate/logging"
	"cmdgate/messaging"
)

// ICommandExecutor 命令执行器接口
//
// 由业务侧实现。契约：
//   - 每个执行上下文最终必须恰好调用一次 NotifyCompleted，
//     无论成功、领域失败还是非预期故障；
//   - 同步返回非 nil 错误且尚未完成时，由消费者代为上报失败完成；
//   - 返回 nil 且尚未完成表示执行转入异步，完成在别的协程上报。
type ICommandExecutor interface {
	// Execute 执行一条命令
	Execute(ctx context.Context, ectx *ExecutionContext) error
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	// Queue 入站命令队列（必填）
	Queue messaging.IQueueClient

	// Decoder 信封解码器（必填）
	Decoder codec.IDecoder

	// Executor 命令执行器（必填）
	Executor ICommandExecutor

	// Repository 聚合仓储，供执行上下文按需加载聚合（必填）
	Repository domain.IRepository

	// Publisher 结果通知发布器，nil 表示不发结果通知
	Publisher IResultPublisher

	// Journal 完成日志，nil 表示不做跨重启去重
	Journal ICompletionJournal

	// Tracker 在途跟踪器，nil 则按默认配置创建
	Tracker *InFlightTracker

	// Logger 组件日志
	Logger logging.Logger
}

// ConsumerStats 消费者运行统计
type ConsumerStats struct {
	Received       int64 `json:"received"`
	Duplicates     int64 `json:"duplicates"`
	DecodeFailures int64 `json:"decode_failures"`
	Completed      int64 `json:"completed"`
	InFlight       int   `json:"in_flight"`
}

// Consumer 命令消费者
//
// 入站命令处理的组装点：订阅主题、解码信封、去重、
// 构建执行上下文并分发给执行器，完成由关联器接回确认与结果发布。
//
// 生命周期：NewConsumer -> Subscribe(逐个主题) -> Start -> Shutdown。
// Start 之后不再接受新的订阅。
type Consumer struct {
	queue      messaging.IQueueClient
	decoder    codec.IDecoder
	executor   ICommandExecutor
	repository domain.IRepository
	journal    ICompletionJournal
	tracker    *InFlightTracker
	correlator *Correlator
	logger     logging.Logger

	running atomic.Bool

	received       atomic.Int64
	duplicates     atomic.Int64
	decodeFailures atomic.Int64
	completed      atomic.Int64
}

// NewConsumer 创建命令消费者
func NewConsumer(config *ConsumerConfig) (*Consumer, error) {
	if config == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "config cannot be nil")
	}
	if config.Queue == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "queue cannot be nil")
	}
	if config.Decoder == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "decoder cannot be nil")
	}
	if config.Executor == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "executor cannot be nil")
	}
	if config.Repository == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "repository cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.ComponentLogger("consume.consumer")
	}

	tracker := config.Tracker
	if tracker == nil {
		tracker = NewInFlightTracker(nil)
	}

	c := &Consumer{
		queue:      config.Queue,
		decoder:    config.Decoder,
		executor:   config.Executor,
		repository: config.Repository,
		journal:    config.Journal,
		tracker:    tracker,
		logger:     logger,
	}
	c.correlator = NewCorrelator(tracker, config.Journal, config.Publisher, logger)

	return c, nil
}

// Subscribe 订阅一个命令主题
//
// 必须在 Start 之前调用。同一主题重复订阅由队列实现拒绝。
func (c *Consumer) Subscribe(topic string) error {
	if c.running.Load() {
		return errors.NewError(errors.ErrCodeConflict, "cannot subscribe after consumer started")
	}
	return c.queue.Subscribe(topic, c.handleDelivery)
}

// Start 启动消费
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.NewError(errors.ErrCodeConflict, "consumer already started")
	}

	if err := c.queue.Start(ctx); err != nil {
		c.running.Store(false)
		return errors.WrapError(err, errors.ErrCodeQueue, "failed to start queue")
	}

	c.logger.Info(ctx, "command consumer started")
	return nil
}

// Shutdown 优雅关闭
//
// 停止拉取新消息并释放跟踪器资源。尚未完成的在途命令不被打断：
// 它们的消息保持未确认，由传输层在重启后重投递。
func (c *Consumer) Shutdown(ctx context.Context) error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	err := c.queue.Close()
	c.tracker.Stop()

	c.logger.Info(ctx, "command consumer stopped",
		logging.Int("in_flight", c.tracker.Count()))
	return err
}

// Stats 获取运行统计
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received:       c.received.Load(),
		Duplicates:     c.duplicates.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Completed:      c.completed.Load(),
		InFlight:       c.tracker.Count(),
	}
}

// handleDelivery 处理一次消息投递
//
// 返回错误表示消息未被消化（解码失败等），不确认，由传输层
// 按自身策略重投或进死信；返回 nil 表示本次投递已消化，
// 确认动作由完成路径（或重复分支）负责。
func (c *Consumer) handleDelivery(ctx context.Context, delivery messaging.Delivery) error {
	c.received.Add(1)

	decoded, err := c.decoder.Decode(delivery.Body)
	if err != nil {
		c.decodeFailures.Add(1)
		c.logger.Error(ctx, "failed to decode command envelope",
			logging.String("topic", delivery.Topic),
			logging.Error(err))
		return err
	}

	command := decoded.Command
	commandID := command.GetID()

	if c.journal != nil {
		done, jerr := c.journal.IsCompleted(ctx, commandID)
		if jerr != nil {
			// 日志查询失败按"未完成"处理，靠在途跟踪器兜底
			c.logger.Warn(ctx, "journal lookup failed, treating as not completed",
				logging.String("command_id", commandID),
				logging.Error(jerr))
		} else if done {
			// 跨重启的重复投递：执行早已完成，直接确认
			c.duplicates.Add(1)
			c.logger.Info(ctx, "duplicate delivery of completed command, acking",
				logging.String("command_id", commandID))
			if ackErr := delivery.Receipt.Ack(); ackErr != nil {
				c.logger.Warn(ctx, "failed to ack duplicate delivery",
					logging.String("command_id", commandID),
					logging.Error(ackErr))
			}
			return nil
		}
	}

	if !c.tracker.TryBegin(commandID, delivery.Receipt) {
		// 原始执行仍在途：丢弃本次投递，不触碰已登记的回执，
		// 也不确认本条消息（完成后的重投递会命中完成日志）
		c.duplicates.Add(1)
		c.logger.Warn(ctx, "duplicate delivery of in-flight command, dropping",
			logging.String("command_id", commandID),
			logging.String("topic", delivery.Topic))
		return nil
	}

	ectx := newExecutionContext(
		command,
		delivery,
		decoded.ResultTopic,
		decoded.RoutingHint,
		c.repository,
		c.onCompleted,
		c.logger,
	)

	c.logger.Debug(ctx, "dispatching command",
		logging.String("command_id", commandID),
		logging.String("command_type", command.GetCommandType()),
		logging.String("topic", delivery.Topic))

	if execErr := c.executor.Execute(ctx, ectx); execErr != nil && !ectx.Completed() {
		// 执行器同步失败且未自行上报完成：消费者代为走失败完成路径
		ectx.NotifyCompleted(ctx, StatusFailed, "", errors.Classify(execErr), execErr.Error())
	}
	return nil
}

// onCompleted 完成回调，桥接到关联器并维护统计
func (c *Consumer) onCompleted(ctx context.Context, ectx *ExecutionContext, completion Completion) {
	c.correlator.OnCompleted(ctx, ectx, completion)
	c.completed.Add(1)
}

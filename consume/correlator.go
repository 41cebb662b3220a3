package consume

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cmdgate/domain"
	"cmdgate/logging"
)

// Correlator 完成关联器
//
// 把异步执行的完成事件接回队列确认与结果发布：
//  1. 从在途跟踪器取出该命令的回执并确认消息（至此队列认为消费成功）；
//  2. 在完成日志中登记该命令（尽力而为，失败不阻断）；
//  3. 构造结果通知并发布到信封指定的结果主题（fire-and-forget）。
//
// 关联器是完成路径的唯一实现者：执行上下文的 NotifyCompleted
// 经 CAS 保证恰好调用它一次。
type Correlator struct {
	tracker   *InFlightTracker
	journal   ICompletionJournal
	publisher IResultPublisher
	logger    logging.Logger
}

// NewCorrelator 创建完成关联器
//
// journal、publisher 均可为 nil：nil 日志表示不做跨重启去重，
// nil 发布器表示不发出结果通知（仅确认消息）。
func NewCorrelator(tracker *InFlightTracker, journal ICompletionJournal, publisher IResultPublisher, logger logging.Logger) *Correlator {
	if logger == nil {
		logger = logging.ComponentLogger("consume.correlator")
	}
	return &Correlator{
		tracker:   tracker,
		journal:   journal,
		publisher: publisher,
		logger:    logger,
	}
}

// OnCompleted 处理一次命令完成
//
// 顺序不可调换：必须先移除在途条目再确认回执，保证观察者
// 不会看到"已确认但仍在途"的中间状态。
func (c *Correlator) OnCompleted(ctx context.Context, ectx *ExecutionContext, completion Completion) {
	commandID := ectx.Command().GetID()

	receipt, found := c.tracker.EndIfPresent(commandID)
	if !found {
		// 条目可能已被 TTL 驱逐，消息交由传输层重投递
		c.logger.Warn(ctx, "completion arrived but command no longer in flight",
			logging.String("command_id", commandID),
			logging.String("status", string(completion.Status)))
	} else if err := receipt.Ack(); err != nil {
		// 确认失败不回滚：执行已经发生，重投递由去重与完成日志兜底
		c.logger.Warn(ctx, "failed to ack message",
			logging.String("command_id", commandID),
			logging.Error(err))
	}

	if c.journal != nil {
		if err := c.journal.MarkCompleted(ctx, commandID); err != nil {
			c.logger.Warn(ctx, "failed to journal completion",
				logging.String("command_id", commandID),
				logging.Error(err))
		}
	}

	c.publishResult(ctx, ectx, completion)
}

// publishResult 构造并发布结果通知
func (c *Correlator) publishResult(ctx context.Context, ectx *ExecutionContext, completion Completion) {
	if c.publisher == nil || ectx.ResultTopic() == "" {
		return
	}

	notification := &ResultNotification{
		ID:            uuid.New().String(),
		CommandID:     ectx.Command().GetID(),
		AggregateID:   completion.AggregateID,
		Status:        completion.Status,
		ExceptionKind: completion.ExceptionKind,
		Message:       completion.Message,
		RoutingHint:   ectx.RoutingHint(),
		CompletedAt:   time.Now(),
	}
	if pc, ok := ectx.Command().(domain.IProcessCommand); ok {
		notification.ProcessID = pc.GetProcessID()
	}

	if err := c.publisher.Publish(ctx, notification, ectx.ResultTopic()); err != nil {
		// 结果通知是尽力而为，发布失败不影响已完成的确认
		c.logger.Error(ctx, "failed to publish result notification",
			logging.String("command_id", notification.CommandID),
			logging.String("topic", ectx.ResultTopic()),
			logging.Error(err))
	}
}

package consume

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"cmdgate/domain"
	"cmdgate/logging"
	"cmdgate/messaging"
)

// Completion 一次命令执行的最终结果
type Completion struct {
	Status        Status
	AggregateID   string
	ExceptionKind string
	Message       string
}

// completionFunc 完成回调，由完成关联器绑定
type completionFunc func(ctx context.Context, ectx *ExecutionContext, completion Completion)

// ExecutionContext 命令执行上下文（工作单元）
//
// 每个命令创建一个，生命周期仅覆盖该命令的一次执行：
//   - 跟踪本次执行中加载或创建的聚合（聚合 ID -> 实例）；
//   - 对仓储做读穿缓存：同一 ID 在同一上下文内只查询仓储一次，
//     重复读取返回同一实例，重复修改在同一实例上累积；
//   - 承载一次性的完成动作（NotifyCompleted），完成关联器是其唯一消费者。
//
// 跟踪集合对上下文私有，不跨命令共享；但执行器可能在多个协程中
// 触碰它，因此内部仍然加锁。缓存绝不能比上下文活得更久，
// 避免跨命令读到过期聚合。
type ExecutionContext struct {
	command  domain.ICommand
	delivery messaging.Delivery

	resultTopic string
	routingHint string

	repository domain.IRepository

	// tracked 聚合 ID 到实例的映射，本上下文私有
	tracked map[string]domain.IAggregateRoot
	mutex   sync.RWMutex

	// completed 一次性完成标记（CAS 保证恰好一次）
	completed  atomic.Bool
	onComplete completionFunc

	logger logging.Logger
}

// newExecutionContext 创建执行上下文（由 Consumer 在分发时调用）
func newExecutionContext(
	command domain.ICommand,
	delivery messaging.Delivery,
	resultTopic string,
	routingHint string,
	repository domain.IRepository,
	onComplete completionFunc,
	logger logging.Logger,
) *ExecutionContext {
	return &ExecutionContext{
		command:     command,
		delivery:    delivery,
		resultTopic: resultTopic,
		routingHint: routingHint,
		repository:  repository,
		tracked:     make(map[string]domain.IAggregateRoot),
		onComplete:  onComplete,
		logger:      logger,
	}
}

// Command 获取本次执行的命令
func (ec *ExecutionContext) Command() domain.ICommand {
	return ec.command
}

// Delivery 获取承载本命令的原始投递（主题、消息体）
func (ec *ExecutionContext) Delivery() messaging.Delivery {
	return ec.delivery
}

// ResultTopic 获取结果通知主题（来自原始信封）
func (ec *ExecutionContext) ResultTopic() string {
	return ec.resultTopic
}

// RoutingHint 获取信封上的路由提示（原样转发）
func (ec *ExecutionContext) RoutingHint() string {
	return ec.routingHint
}

// AddNew 登记一个新创建的聚合
//
// 同一上下文内重复登记同一 ID 返回 ErrDuplicateAggregate：
// 这是命令逻辑试图创建作用域内已存在的聚合，属于调用方缺陷，
// 不是可重试的瞬态条件。首次登记保持不变。
func (ec *ExecutionContext) AddNew(aggregate domain.IAggregateRoot) error {
	if aggregate == nil {
		return domain.NewInvalidAggregateIDError("aggregate cannot be nil")
	}
	id := aggregate.GetID()
	if id == "" {
		return domain.NewInvalidAggregateIDError("aggregate id cannot be empty")
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	if _, exists := ec.tracked[id]; exists {
		return domain.NewDuplicateAggregateError(id)
	}
	ec.tracked[id] = aggregate
	return nil
}

// Get 按 ID 获取聚合
//
// 命中本上下文缓存时直接返回已跟踪实例；否则委托仓储加载，
// 加载成功后先缓存再返回，保证同一 ID 的后续调用返回同一实例
// 且不再查询仓储。
//
// 错误：
//   - id 为空：ErrInvalidAggregateID；
//   - 仓储未找到：ErrAggregateNotFound（跟踪集合保持不变）。
func (ec *ExecutionContext) Get(ctx context.Context, aggregateType, id string) (domain.IAggregateRoot, error) {
	if id == "" {
		return nil, domain.NewInvalidAggregateIDError("aggregate id cannot be empty")
	}

	ec.mutex.RLock()
	if aggregate, exists := ec.tracked[id]; exists {
		ec.mutex.RUnlock()
		return aggregate, nil
	}
	ec.mutex.RUnlock()

	aggregate, err := ec.repository.Load(ctx, aggregateType, id)
	if err != nil {
		return nil, err
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	// 并发 Get 同一 ID 时可能已有协程先完成加载，以先到者为准
	if existing, exists := ec.tracked[id]; exists {
		return existing, nil
	}
	ec.tracked[id] = aggregate
	return aggregate, nil
}

// GetAllTracked 获取当前跟踪的聚合快照
//
// 执行器用它判断本次命令触碰了哪些聚合（持久化、发布事件）。
func (ec *ExecutionContext) GetAllTracked() map[string]domain.IAggregateRoot {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	snapshot := make(map[string]domain.IAggregateRoot, len(ec.tracked))
	for id, aggregate := range ec.tracked {
		snapshot[id] = aggregate
	}
	return snapshot
}

// Clear 清空跟踪集合
//
// 用于同一上下文内重新开始执行，避免泄漏先前的跟踪记录。
func (ec *ExecutionContext) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.tracked = make(map[string]domain.IAggregateRoot)
}

// Completed 本上下文是否已完成
func (ec *ExecutionContext) Completed() bool {
	return ec.completed.Load()
}

// NotifyCompleted 上报命令执行完成
//
// 由执行器在处理结束时调用恰好一次（成功、领域失败或非预期故障均经此路径），
// 触发完成关联器：移除在途条目并确认消息、构造并发出结果通知。
//
// 完成动作是一次性的：重复调用被忽略并记录警告，这属于执行器
// 违反契约，不会产生第二次确认或第二条结果通知。
func (ec *ExecutionContext) NotifyCompleted(ctx context.Context, status Status, aggregateID, exceptionKind, message string) {
	if !ec.completed.CompareAndSwap(false, true) {
		ec.logger.Warn(ctx, "duplicate completion ignored",
			logging.String("command_id", ec.command.GetID()),
			logging.String("status", string(status)))
		return
	}

	ec.onComplete(ctx, ec, Completion{
		Status:        status,
		AggregateID:   aggregateID,
		ExceptionKind: exceptionKind,
		Message:       message,
	})
}

// GetAggregate 类型安全的聚合获取辅助函数
//
// 对 ExecutionContext.Get 的泛型包装，免去执行器手写类型断言。
func GetAggregate[T domain.IAggregateRoot](ctx context.Context, ec *ExecutionContext, aggregateType, id string) (T, error) {
	var zero T

	aggregate, err := ec.Get(ctx, aggregateType, id)
	if err != nil {
		return zero, err
	}

	typed, ok := aggregate.(T)
	if !ok {
		return zero, fmt.Errorf("aggregate %s has type %T, not the requested type", id, aggregate)
	}
	return typed, nil
}

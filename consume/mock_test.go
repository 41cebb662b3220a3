package consume

import (
	"context"
	"sync"
	"sync/atomic"

	"cmdgate/domain"
	"cmdgate/logging"
	"cmdgate/messaging"
)

func newTestLogger() logging.Logger {
	return logging.NewNoopLogger()
}

// mockReceipt 记录确认次数的回执
type mockReceipt struct {
	acks   atomic.Int32
	ackErr error
}

func (r *mockReceipt) Ack() error {
	r.acks.Add(1)
	return r.ackErr
}

func (r *mockReceipt) AckCount() int32 {
	return r.acks.Load()
}

// orderAggregate 测试用聚合
type orderAggregate struct {
	id     string
	amount float64
}

func (a *orderAggregate) GetID() string            { return a.id }
func (a *orderAggregate) GetAggregateType() string { return "Order" }

// mockRepository 内存仓储，记录每个 ID 的加载次数
type mockRepository struct {
	mutex      sync.Mutex
	aggregates map[string]domain.IAggregateRoot
	loadCalls  map[string]int
	loadErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		aggregates: make(map[string]domain.IAggregateRoot),
		loadCalls:  make(map[string]int),
	}
}

func (r *mockRepository) put(aggregate domain.IAggregateRoot) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.aggregates[aggregate.GetID()] = aggregate
}

func (r *mockRepository) Load(ctx context.Context, aggregateType, id string) (domain.IAggregateRoot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loadCalls[id]++
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	aggregate, exists := r.aggregates[id]
	if !exists {
		return nil, domain.NewAggregateNotFoundError(aggregateType, id)
	}
	return aggregate, nil
}

func (r *mockRepository) loads(id string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.loadCalls[id]
}

// mockPublisher 记录发布的结果通知
type mockPublisher struct {
	mutex         sync.Mutex
	notifications []*ResultNotification
	topics        []string
	publishErr    error
}

func (p *mockPublisher) Publish(ctx context.Context, notification *ResultNotification, topic string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.notifications = append(p.notifications, notification)
	p.topics = append(p.topics, topic)
	return p.publishErr
}

func (p *mockPublisher) published() []*ResultNotification {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]*ResultNotification, len(p.notifications))
	copy(out, p.notifications)
	return out
}

// executorFunc 函数式执行器
type executorFunc func(ctx context.Context, ectx *ExecutionContext) error

func (f executorFunc) Execute(ctx context.Context, ectx *ExecutionContext) error {
	return f(ctx, ectx)
}

// newTestContext 构造带 mock 依赖的执行上下文
func newTestContext(command domain.ICommand, repository domain.IRepository, onComplete completionFunc) *ExecutionContext {
	if onComplete == nil {
		onComplete = func(ctx context.Context, ectx *ExecutionContext, completion Completion) {}
	}
	return newExecutionContext(
		command,
		messaging.Delivery{Topic: "commands.test", Receipt: &mockReceipt{}},
		"results.test",
		"orders-es",
		repository,
		onComplete,
		newTestLogger(),
	)
}

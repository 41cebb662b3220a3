package consume

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cmdgate/domain"
)

func TestExecutionContext_AddNew(t *testing.T) {
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), nil)

	order := &orderAggregate{id: "order-1", amount: 10}
	require.NoError(t, ectx.AddNew(order))

	// 重复登记同一 ID 失败，首次登记保持不变
	err := ectx.AddNew(&orderAggregate{id: "order-1", amount: 99})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrDuplicateAggregate)

	tracked := ectx.GetAllTracked()
	require.Len(t, tracked, 1)
	require.Same(t, order, tracked["order-1"])
}

func TestExecutionContext_AddNewValidation(t *testing.T) {
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), nil)

	require.ErrorIs(t, ectx.AddNew(nil), domain.ErrInvalidAggregateID)
	require.ErrorIs(t, ectx.AddNew(&orderAggregate{id: ""}), domain.ErrInvalidAggregateID)
}

func TestExecutionContext_GetCachesRepository(t *testing.T) {
	repo := newMockRepository()
	order := &orderAggregate{id: "order-1", amount: 10}
	repo.put(order)

	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)
	ctx := context.Background()

	first, err := ectx.Get(ctx, "Order", "order-1")
	require.NoError(t, err)
	require.Same(t, order, first)

	// 第二次读取命中缓存，仓储不再被查询
	second, err := ectx.Get(ctx, "Order", "order-1")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, repo.loads("order-1"))
}

func TestExecutionContext_GetPrefersAddNew(t *testing.T) {
	repo := newMockRepository()
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)

	order := &orderAggregate{id: "order-1", amount: 10}
	require.NoError(t, ectx.AddNew(order))

	// AddNew 登记过的聚合直接返回，不触达仓储
	got, err := ectx.Get(context.Background(), "Order", "order-1")
	require.NoError(t, err)
	require.Same(t, order, got)
	require.Equal(t, 0, repo.loads("order-1"))
}

func TestExecutionContext_GetNotFound(t *testing.T) {
	repo := newMockRepository()
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)

	_, err := ectx.Get(context.Background(), "Order", "order-9")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrAggregateNotFound)

	// 未找到不污染跟踪集合
	require.Empty(t, ectx.GetAllTracked())
}

func TestExecutionContext_GetEmptyID(t *testing.T) {
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), nil)

	_, err := ectx.Get(context.Background(), "Order", "")
	require.ErrorIs(t, err, domain.ErrInvalidAggregateID)
}

func TestExecutionContext_ConcurrentGetSameID(t *testing.T) {
	repo := newMockRepository()
	repo.put(&orderAggregate{id: "order-1", amount: 10})
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)

	const goroutines = 20
	results := make([]interface{}, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := ectx.Get(context.Background(), "Order", "order-1")
			require.NoError(t, err)
			results[n] = got
		}(i)
	}
	wg.Wait()

	// 所有协程看到同一实例
	for i := 1; i < goroutines; i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestExecutionContext_Clear(t *testing.T) {
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), nil)

	require.NoError(t, ectx.AddNew(&orderAggregate{id: "order-1"}))
	require.Len(t, ectx.GetAllTracked(), 1)

	ectx.Clear()
	require.Empty(t, ectx.GetAllTracked())
}

func TestExecutionContext_NotifyCompletedOnce(t *testing.T) {
	var completions []Completion
	onComplete := func(ctx context.Context, ectx *ExecutionContext, completion Completion) {
		completions = append(completions, completion)
	}

	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), onComplete)
	ctx := context.Background()

	require.False(t, ectx.Completed())

	ectx.NotifyCompleted(ctx, StatusSuccess, "order-1", "", "")
	require.True(t, ectx.Completed())

	// 第二次上报被忽略
	ectx.NotifyCompleted(ctx, StatusFailed, "order-1", "INTERNAL_ERROR", "boom")

	require.Len(t, completions, 1)
	require.Equal(t, StatusSuccess, completions[0].Status)
	require.Equal(t, "order-1", completions[0].AggregateID)
}

func TestExecutionContext_ConcurrentNotifyCompleted(t *testing.T) {
	var mu sync.Mutex
	count := 0
	onComplete := func(ctx context.Context, ectx *ExecutionContext, completion Completion) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), newMockRepository(), onComplete)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ectx.NotifyCompleted(context.Background(), StatusSuccess, "", "", "")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, count)
}

func TestGetAggregate_Typed(t *testing.T) {
	repo := newMockRepository()
	repo.put(&orderAggregate{id: "order-1", amount: 42})
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)

	order, err := GetAggregate[*orderAggregate](context.Background(), ectx, "Order", "order-1")
	require.NoError(t, err)
	require.Equal(t, 42.0, order.amount)
}

type warehouseAggregate struct{ id string }

func (a *warehouseAggregate) GetID() string            { return a.id }
func (a *warehouseAggregate) GetAggregateType() string { return "Warehouse" }

func TestGetAggregate_TypeMismatch(t *testing.T) {
	repo := newMockRepository()
	repo.put(&warehouseAggregate{id: "order-1"})
	ectx := newTestContext(domain.NewCommand("cmd-1", "PlaceOrder", nil), repo, nil)

	_, err := GetAggregate[*orderAggregate](context.Background(), ectx, "Order", "order-1")
	require.Error(t, err)
}

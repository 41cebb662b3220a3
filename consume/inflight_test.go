package consume

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInFlightTracker_TryBegin(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{Logger: newTestLogger()})
	defer tracker.Stop()

	receipt := &mockReceipt{}

	require.True(t, tracker.TryBegin("cmd-1", receipt))
	require.Equal(t, 1, tracker.Count())

	// 同一 ID 在途期间的二次登记被拒绝
	require.False(t, tracker.TryBegin("cmd-1", &mockReceipt{}))
	require.Equal(t, 1, tracker.Count())

	// 不同 ID 互不影响
	require.True(t, tracker.TryBegin("cmd-2", &mockReceipt{}))
	require.Equal(t, 2, tracker.Count())
}

func TestInFlightTracker_EndIfPresent(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{Logger: newTestLogger()})
	defer tracker.Stop()

	receipt := &mockReceipt{}
	require.True(t, tracker.TryBegin("cmd-1", receipt))

	got, found := tracker.EndIfPresent("cmd-1")
	require.True(t, found)
	require.Same(t, receipt, got)
	require.Equal(t, 0, tracker.Count())

	// 移除后同一 ID 可以重新登记（新的重投递）
	require.True(t, tracker.TryBegin("cmd-1", &mockReceipt{}))
}

func TestInFlightTracker_EndMissing(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{Logger: newTestLogger()})
	defer tracker.Stop()

	got, found := tracker.EndIfPresent("cmd-nope")
	require.False(t, found)
	require.Nil(t, got)
}

func TestInFlightTracker_ConcurrentBegin(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{Logger: newTestLogger()})
	defer tracker.Stop()

	const goroutines = 50
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	// 并发争抢同一命令 ID，只有一个胜出
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryBegin("cmd-race", &mockReceipt{}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), wins)
	require.Equal(t, 1, tracker.Count())
}

func TestInFlightTracker_ConcurrentDistinctIDs(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{Logger: newTestLogger()})
	defer tracker.Stop()

	const goroutines = 100
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("cmd-%d", n)
			require.True(t, tracker.TryBegin(id, &mockReceipt{}))
			_, found := tracker.EndIfPresent(id)
			require.True(t, found)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 0, tracker.Count())
}

func TestInFlightTracker_SweepEvictsStale(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{
		PendingTTL:    20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
		Logger:        newTestLogger(),
	})
	defer tracker.Stop()

	receipt := &mockReceipt{}
	require.True(t, tracker.TryBegin("cmd-stale", receipt))

	require.Eventually(t, func() bool {
		return tracker.Count() == 0
	}, time.Second, 5*time.Millisecond)

	// 驱逐不确认回执，消息留给传输层重投递
	require.Equal(t, int32(0), receipt.AckCount())
	require.Equal(t, int64(1), tracker.EvictedCount())

	// 驱逐后同一 ID 可重新登记
	require.True(t, tracker.TryBegin("cmd-stale", &mockReceipt{}))
}

func TestInFlightTracker_ZeroTTLDisablesSweep(t *testing.T) {
	tracker := NewInFlightTracker(&TrackerConfig{
		PendingTTL:    0,
		SweepInterval: 5 * time.Millisecond,
		Logger:        newTestLogger(),
	})
	defer tracker.Stop()

	require.True(t, tracker.TryBegin("cmd-1", &mockReceipt{}))
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, tracker.Count())
}

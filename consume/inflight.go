package consume

import (
	"context"
	"sync"
	"time"

	"cmdgate/logging"
	"cmdgate/messaging"
)

// InFlightTracker 在途命令跟踪器
//
// 维护命令 ID 到待确认回执的并发映射，仅用于去重：
// 一个命令 ID 在映射中存在，当且仅当恰好有一次针对它的执行尚未完成。
//
// 策略：
//   - 插入与移除各自是对共享映射的单次原子操作；
//   - 不在命令执行期间持有任何锁，并发风险只落在映射操作上；
//   - 条目只在首次接收时插入，只由完成关联器移除。
//
// 针对"原始执行永不完成导致条目永久滞留"的情况，跟踪器可选地
// 运行一个清理协程：超过 PendingTTL 仍未结束的条目被强制驱逐
// （不确认回执，由传输层的重投递机制接管该消息）。
type InFlightTracker struct {
	// entries 命令 ID 到在途条目的映射
	entries map[string]*inflightEntry
	mutex   sync.Mutex

	ttl           time.Duration
	sweepInterval time.Duration
	logger        logging.Logger

	stopSweep chan struct{}
	stopOnce  sync.Once

	evicted int64
}

// inflightEntry 单个在途条目
type inflightEntry struct {
	receipt messaging.IReceipt
	beganAt time.Time
}

// TrackerConfig 跟踪器配置
type TrackerConfig struct {
	// PendingTTL 在途条目的最大存活时间，超过后被驱逐
	// 0 表示禁用驱逐（条目只能由完成关联器移除）
	PendingTTL time.Duration

	// SweepInterval 驱逐扫描间隔（默认：10分钟）
	SweepInterval time.Duration

	// Logger 组件日志
	Logger logging.Logger
}

// DefaultTrackerConfig 默认配置
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		PendingTTL:    time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// NewInFlightTracker 创建在途命令跟踪器
//
// 参数：
//   - config: 配置，nil 则使用默认配置
func NewInFlightTracker(config *TrackerConfig) *InFlightTracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.ComponentLogger("consume.tracker")
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 10 * time.Minute
	}

	t := &InFlightTracker{
		entries:       make(map[string]*inflightEntry),
		ttl:           config.PendingTTL,
		sweepInterval: config.SweepInterval,
		logger:        config.Logger,
		stopSweep:     make(chan struct{}),
	}

	if t.ttl > 0 {
		go t.startSweepWorker()
	}

	return t
}

// TryBegin 尝试登记一次命令执行
//
// 原子插入命令 ID 与回执的配对：
//   - 返回 true 表示登记成功，命令可以进入执行；
//   - 返回 false 表示该 ID 已有一次在途执行，本次投递必须丢弃，
//     且不得触碰已登记的回执。
func (t *InFlightTracker) TryBegin(commandID string, receipt messaging.IReceipt) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.entries[commandID]; exists {
		return false
	}
	t.entries[commandID] = &inflightEntry{
		receipt: receipt,
		beganAt: time.Now(),
	}
	return true
}

// EndIfPresent 原子移除命令 ID 并取回其回执
//
// 由完成关联器调用。ID 不存在时视为无操作（单写者设计下不应发生，
// 但必须容忍，例如条目已被驱逐）。
func (t *InFlightTracker) EndIfPresent(commandID string) (messaging.IReceipt, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	entry, exists := t.entries[commandID]
	if !exists {
		return nil, false
	}
	delete(t.entries, commandID)
	return entry.receipt, true
}

// Count 获取当前在途条目数（用于监控）
func (t *InFlightTracker) Count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

// EvictedCount 获取累计驱逐条目数（用于监控）
func (t *InFlightTracker) EvictedCount() int64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.evicted
}

// Stop 停止驱逐协程（用于测试和优雅关闭）
func (t *InFlightTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopSweep)
	})
}

// startSweepWorker 启动驱逐 worker
func (t *InFlightTracker) startSweepWorker() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopSweep:
			return
		}
	}
}

// sweep 驱逐超过 TTL 的在途条目
//
// 驱逐只移除映射条目，不确认回执：对应消息仍处于未确认状态，
// 由传输层的可见性超时/重投递机制决定后续。
func (t *InFlightTracker) sweep() {
	now := time.Now()

	t.mutex.Lock()
	stale := make([]string, 0)
	for commandID, entry := range t.entries {
		if now.Sub(entry.beganAt) > t.ttl {
			stale = append(stale, commandID)
			delete(t.entries, commandID)
			t.evicted++
		}
	}
	t.mutex.Unlock()

	for _, commandID := range stale {
		t.logger.Warn(context.Background(), "in-flight command evicted, execution never completed",
			logging.String("command_id", commandID),
			logging.Duration("ttl", t.ttl))
	}
}

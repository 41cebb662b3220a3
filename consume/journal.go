package consume

import (
	"context"
	"sync"
	"time"

	"cmdgate/logging"
)

// ICompletionJournal 完成日志接口
//
// 记录已完成命令的 ID，用于跨进程重启的重复投递识别：
// 在途跟踪器只覆盖本进程生命周期内的重复，完成日志补上
// "已执行并确认、但队列仍然重投"的窗口。
//
// 实现必须容忍同一 ID 的重复 MarkCompleted（幂等写入）。
type ICompletionJournal interface {
	// IsCompleted 判断命令是否已记录为完成
	IsCompleted(ctx context.Context, commandID string) (bool, error)

	// MarkCompleted 记录命令完成（幂等）
	MarkCompleted(ctx context.Context, commandID string) error
}

// MemoryJournal 基于内存的完成日志
//
// 记录在 TTL 内保留，后台协程定期清理过期条目。
// 仅适用于单进程部署或测试，跨重启去重请使用 SQL/Redis 实现。
type MemoryJournal struct {
	// completed 命令 ID 到完成时间的映射
	completed map[string]time.Time
	mutex     sync.RWMutex

	ttl    time.Duration
	logger logging.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// MemoryJournalConfig 内存完成日志配置
type MemoryJournalConfig struct {
	// TTL 完成记录的保留时间（默认：24小时）
	TTL time.Duration

	// CleanupInterval 过期清理间隔（默认：10分钟）
	CleanupInterval time.Duration

	// Logger 组件日志
	Logger logging.Logger
}

// DefaultMemoryJournalConfig 默认配置
func DefaultMemoryJournalConfig() *MemoryJournalConfig {
	return &MemoryJournalConfig{
		TTL:             24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// NewMemoryJournal 创建内存完成日志
func NewMemoryJournal(config *MemoryJournalConfig) *MemoryJournal {
	if config == nil {
		config = DefaultMemoryJournalConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = logging.ComponentLogger("consume.journal")
	}

	j := &MemoryJournal{
		completed:   make(map[string]time.Time),
		ttl:         config.TTL,
		logger:      config.Logger,
		stopCleanup: make(chan struct{}),
	}

	go j.startCleanupWorker(config.CleanupInterval)

	return j
}

// IsCompleted 判断命令是否已记录为完成
func (j *MemoryJournal) IsCompleted(ctx context.Context, commandID string) (bool, error) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	completedAt, exists := j.completed[commandID]
	if !exists {
		return false, nil
	}
	// 过期记录视为不存在，等待清理协程回收
	if time.Since(completedAt) > j.ttl {
		return false, nil
	}
	return true, nil
}

// MarkCompleted 记录命令完成（幂等）
func (j *MemoryJournal) MarkCompleted(ctx context.Context, commandID string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if _, exists := j.completed[commandID]; !exists {
		j.completed[commandID] = time.Now()
	}
	return nil
}

// Count 获取当前记录数（用于测试和监控）
func (j *MemoryJournal) Count() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return len(j.completed)
}

// Clear 清空所有记录（用于测试）
func (j *MemoryJournal) Clear() {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.completed = make(map[string]time.Time)
}

// Stop 停止清理协程
func (j *MemoryJournal) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCleanup)
	})
}

// startCleanupWorker 启动过期记录清理 worker
func (j *MemoryJournal) startCleanupWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.cleanupExpired()
		case <-j.stopCleanup:
			return
		}
	}
}

// cleanupExpired 清理过期的完成记录
func (j *MemoryJournal) cleanupExpired() {
	now := time.Now()
	removed := 0

	j.mutex.Lock()
	for commandID, completedAt := range j.completed {
		if now.Sub(completedAt) > j.ttl {
			delete(j.completed, commandID)
			removed++
		}
	}
	j.mutex.Unlock()

	if removed > 0 {
		j.logger.Debug(context.Background(), "expired journal entries removed",
			logging.Int("count", removed))
	}
}

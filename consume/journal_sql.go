package consume

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cmdgate/errors"
	"cmdgate/logging"
)

// SQLJournal 基于关系数据库的完成日志
//
// 每条完成记录一行，主键为命令 ID，写入用 ON CONFLICT DO NOTHING
// 实现幂等。适用于消费者与业务数据共用同一数据库的部署，
// SQLite 与 PostgreSQL 方言均可用。
type SQLJournal struct {
	db        *sql.DB
	tableName string
	logger    logging.Logger
}

// NewSQLJournal 创建 SQL 完成日志
//
// 参数：
//   - db: 数据库连接
//   - tableName: 表名，空则使用 "command_journal"
func NewSQLJournal(db *sql.DB, tableName string, logger logging.Logger) (*SQLJournal, error) {
	if db == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "db cannot be nil")
	}
	if tableName == "" {
		tableName = "command_journal"
	}
	if logger == nil {
		logger = logging.ComponentLogger("consume.journal.sql")
	}
	return &SQLJournal{
		db:        db,
		tableName: tableName,
		logger:    logger,
	}, nil
}

// EnsureSchema 创建完成日志表（如不存在）
func (j *SQLJournal) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			command_id   TEXT PRIMARY KEY,
			completed_at TIMESTAMP NOT NULL
		)`, j.tableName)

	if _, err := j.db.ExecContext(ctx, query); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "failed to create journal table")
	}
	return nil
}

// IsCompleted 判断命令是否已记录为完成
func (j *SQLJournal) IsCompleted(ctx context.Context, commandID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE command_id = ?", j.tableName)

	var one int
	err := j.db.QueryRowContext(ctx, query, commandID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeDatabase, "failed to query journal")
	}
	return true, nil
}

// MarkCompleted 记录命令完成（幂等）
func (j *SQLJournal) MarkCompleted(ctx context.Context, commandID string) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (command_id, completed_at) VALUES (?, ?) ON CONFLICT (command_id) DO NOTHING",
		j.tableName)

	if _, err := j.db.ExecContext(ctx, query, commandID, time.Now().UTC()); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "failed to insert journal entry")
	}
	return nil
}

// PurgeBefore 删除指定时刻之前的完成记录，返回删除行数
//
// 由部署方的定时任务调用，控制日志表增长。
func (j *SQLJournal) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE completed_at < ?", j.tableName)

	result, err := j.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeDatabase, "failed to purge journal")
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if removed > 0 {
		j.logger.Debug(ctx, "journal entries purged", logging.Int64("count", removed))
	}
	return removed, nil
}

var _ ICompletionJournal = (*SQLJournal)(nil)

package domain

import (
	"context"
)

// IRepository 聚合仓储接口
//
// 由外部存储实现（事件溯源仓储、ORM 等），本模块只消费读取能力。
// 约定：
//   - 聚合不存在时返回 ErrAggregateNotFound（可通过 errors.Is 判断）；
//   - 返回的实例归调用方（单次命令执行上下文）所有。
type IRepository interface {
	// Load 按类型与 ID 加载聚合
	Load(ctx context.Context, aggregateType, id string) (IAggregateRoot, error)
}

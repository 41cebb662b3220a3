package domain

// IAggregateRoot 聚合根接口
//
// 聚合根是业务一致性边界，由稳定的字符串 ID 标识。
// 聚合的持久化与重建由外部仓储负责，本模块只在命令执行期间跟踪实例。
type IAggregateRoot interface {
	// GetID 获取聚合根 ID
	GetID() string

	// GetAggregateType 获取聚合根类型名称
	GetAggregateType() string
}

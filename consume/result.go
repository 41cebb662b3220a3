// Package consume 实现命令消费侧的核心协调逻辑：
// 消息去重、命令执行上下文（工作单元）与完成关联。
package consume

import (
	"context"
	"time"
)

// Status 命令执行结果状态
type Status string

const (
	// StatusSuccess 执行成功
	StatusSuccess Status = "success"

	// StatusFailed 执行失败（领域失败或非预期故障，统一通过结果通知上报）
	StatusFailed Status = "failed"
)

// ResultNotification 结果通知
//
// 每个被执行（非重复）的命令，无论成功失败，恰好对外发出一条结果通知。
type ResultNotification struct {
	// ID 通知自身的唯一标识
	ID string `json:"id"`

	// CommandID 对应的命令 ID
	CommandID string `json:"command_id"`

	// AggregateID 涉及的聚合 ID（已知时填写）
	AggregateID string `json:"aggregate_id,omitempty"`

	// ProcessID 流程实例 ID（流程命令时填写）
	ProcessID string `json:"process_id,omitempty"`

	// Status 执行结果状态
	Status Status `json:"status"`

	// ExceptionKind 异常类别标签（失败时填写）
	ExceptionKind string `json:"exception_kind,omitempty"`

	// Message 人类可读的失败描述（失败时填写）
	Message string `json:"message,omitempty"`

	// RoutingHint 信封上的路由提示，原样转发
	RoutingHint string `json:"event_handled,omitempty"`

	// CompletedAt 完成时间
	CompletedAt time.Time `json:"completed_at"`
}

// IResultPublisher 结果通知发布接口
//
// 由外部传输实现（NATS、Redis Streams 等）。对本模块而言是
// fire-and-forget：发布失败只记录日志，不影响消息确认。
type IResultPublisher interface {
	// Publish 将结果通知发布到指定主题
	Publish(ctx context.Context, notification *ResultNotification, topic string) error
}

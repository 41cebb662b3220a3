// Package messaging 提供消息队列消费侧的核心抽象
//
// 与传统的"收到即确认"总线不同，这里的投递采用手动确认语义：
// 队列客户端交付 Delivery 后并不认为消息已处理，只有持有 Receipt 的一方
// 显式 Ack 之后，这条投递才算完成。未确认的投递由具体传输的
// 重投递/可见性超时机制兜底。
package messaging

import (
	"context"
)

// IReceipt 待确认回执
//
// 代表"这一次具体的投递，尚未确认"。回执只能被消费一次：
// 重复 Ack 是调用方的错误，实现应返回错误而不是静默成功。
type IReceipt interface {
	// Ack 确认本次投递已被完全处理
	Ack() error
}

// Delivery 一次消息投递
type Delivery struct {
	// Topic 消息来源主题
	Topic string

	// Body 原始消息体（未解码）
	Body []byte

	// Receipt 本次投递的待确认回执
	Receipt IReceipt
}

// DeliveryHandler 投递处理函数
//
// 返回错误表示本次投递无法处理（例如信封解码失败）。
// 队列客户端收到错误后不应确认消息，由传输层的重投递机制决定后续。
// 返回 nil 不代表消息已确认——确认只通过 Receipt.Ack 发生。
type DeliveryHandler func(ctx context.Context, delivery Delivery) error

// IQueueClient 队列客户端接口
//
// 由具体传输实现（内存队列、NATS JetStream、Redis Streams 等）。
type IQueueClient interface {
	// Start 启动客户端，开始接收消息
	Start(ctx context.Context) error

	// Subscribe 订阅主题，注册投递处理函数
	Subscribe(topic string, handler DeliveryHandler) error

	// Close 关闭客户端，停止接收
	Close() error

	// Stats 获取统计信息
	Stats() QueueStats
}

// QueueStats 队列客户端统计信息
type QueueStats struct {
	Running     bool     `json:"running"`
	Topics      []string `json:"topics"`
	QueueSize   int      `json:"queue_size,omitempty"`
	QueueDepth  int      `json:"queue_depth,omitempty"`
	WorkerCount int      `json:"worker_count,omitempty"`
	Pending     int      `json:"pending,omitempty"`
	Redelivered int64    `json:"redelivered,omitempty"`
}

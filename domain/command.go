// Package domain 定义命令消费侧依赖的领域抽象
package domain

import (
	"time"
)

// ICommand 命令接口
//
// 命令是系统中一次写操作的意图，具有全局唯一 ID。
// 同一 ID 的命令在一次投递周期内最多被执行一次（由 consume 层保证）。
type ICommand interface {
	// GetID 获取命令全局唯一标识
	GetID() string

	// GetCommandType 获取命令类型名称
	GetCommandType() string

	// GetTimestamp 获取命令创建时间
	GetTimestamp() time.Time

	// GetPayload 获取命令数据
	GetPayload() any
}

// IProcessCommand 流程命令接口
//
// 流程命令是命令的变体，由长流程（Saga/Process Manager）发出，
// 额外携带流程实例 ID，用于结果通知回传时的关联。
type IProcessCommand interface {
	ICommand

	// GetProcessID 获取流程实例 ID
	GetProcessID() string
}

// Command 命令基础实现
type Command struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewCommand 创建命令
func NewCommand(id, commandType string, payload any) *Command {
	return &Command{
		ID:        id,
		Type:      commandType,
		Timestamp: time.Now(),
		Payload:   payload,
		Metadata:  make(map[string]any),
	}
}

// GetID 获取命令ID
func (c *Command) GetID() string {
	return c.ID
}

// GetCommandType 获取命令类型
func (c *Command) GetCommandType() string {
	return c.Type
}

// GetTimestamp 获取时间戳
func (c *Command) GetTimestamp() time.Time {
	return c.Timestamp
}

// GetPayload 获取命令数据
func (c *Command) GetPayload() any {
	return c.Payload
}

// GetMetadata 获取元数据
func (c *Command) GetMetadata() map[string]any {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	return c.Metadata
}

// SetMetadata 设置元数据
func (c *Command) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

// ProcessCommand 流程命令实现
//
// 嵌入 Command，额外携带流程实例 ID。
type ProcessCommand struct {
	Command

	// ProcessID 发出该命令的流程实例 ID
	ProcessID string `json:"process_id"`
}

// NewProcessCommand 创建流程命令
func NewProcessCommand(id, commandType, processID string, payload any) *ProcessCommand {
	return &ProcessCommand{
		Command:   *NewCommand(id, commandType, payload),
		ProcessID: processID,
	}
}

// GetProcessID 获取流程实例 ID
func (c *ProcessCommand) GetProcessID() string {
	return c.ProcessID
}

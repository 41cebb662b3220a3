package codec

import (
	"encoding/json"
	"fmt"

	"cmdgate/domain"
	"cmdgate/errors"
)

// wireEnvelope 命令信封的线上格式
type wireEnvelope struct {
	CommandID   string          `json:"command_id"`
	TypeCode    string          `json:"type_code"`
	ProcessID   string          `json:"process_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ResultTopic string          `json:"result_topic"`
	RoutingHint string          `json:"event_handled,omitempty"`
}

// DecodedEnvelope 解码后的信封
//
// Command 是强类型命令；ResultTopic 与 RoutingHint 原样来自信封，
// 供完成关联器构造结果通知时使用（RoutingHint 不做解释，原样转发）。
type DecodedEnvelope struct {
	Command     domain.ICommand
	ResultTopic string
	RoutingHint string
}

// IDecoder 信封解码器接口
type IDecoder interface {
	// Decode 将原始消息体解码为强类型命令与路由元数据
	Decode(data []byte) (*DecodedEnvelope, error)
}

// IEncoder 信封编码器接口（生产者侧）
type IEncoder interface {
	// Encode 将命令与路由元数据编码为信封
	Encode(cmd domain.ICommand, resultTopic, routingHint string) ([]byte, error)
}

// JSONCodec 基于 JSON 的信封编解码器
//
// 依赖 CommandRegistry 做类型码到载荷类型的解析。
type JSONCodec struct {
	registry *CommandRegistry
}

// NewJSONCodec 创建 JSON 编解码器
func NewJSONCodec(registry *CommandRegistry) (*JSONCodec, error) {
	if registry == nil {
		return nil, fmt.Errorf("command registry cannot be nil")
	}
	return &JSONCodec{registry: registry}, nil
}

// Decode 解码信封
//
// 失败情形（均返回 DECODE_ERROR）：
//   - 消息体不是合法 JSON 信封；
//   - 命令 ID 缺失；
//   - 类型码未注册；
//   - 载荷与注册的载荷类型不匹配。
func (c *JSONCodec) Decode(data []byte) (*DecodedEnvelope, error) {
	if len(data) == 0 {
		return nil, errors.NewError(errors.ErrCodeDecode, "empty envelope body")
	}

	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDecode, "malformed envelope")
	}
	if wire.CommandID == "" {
		return nil, errors.NewError(errors.ErrCodeDecode, "envelope missing command id")
	}

	commandType, payload, err := c.registry.Resolve(wire.TypeCode)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDecode, "unresolvable command type code")
	}

	if len(wire.Payload) > 0 {
		if err := json.Unmarshal(wire.Payload, payload); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDecode,
				fmt.Sprintf("payload does not match registered type for code %s", wire.TypeCode))
		}
	}

	var cmd domain.ICommand
	if wire.ProcessID != "" {
		cmd = domain.NewProcessCommand(wire.CommandID, commandType, wire.ProcessID, payload)
	} else {
		cmd = domain.NewCommand(wire.CommandID, commandType, payload)
	}

	return &DecodedEnvelope{
		Command:     cmd,
		ResultTopic: wire.ResultTopic,
		RoutingHint: wire.RoutingHint,
	}, nil
}

// Encode 编码信封（生产者侧，主要用于联调与测试）
func (c *JSONCodec) Encode(cmd domain.ICommand, resultTopic, routingHint string) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("command cannot be nil")
	}

	code, ok := c.registry.CodeOf(cmd.GetCommandType())
	if !ok {
		return nil, fmt.Errorf("command type not registered: %s", cmd.GetCommandType())
	}

	payload, err := json.Marshal(cmd.GetPayload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}

	wire := wireEnvelope{
		CommandID:   cmd.GetID(),
		TypeCode:    code,
		Payload:     payload,
		ResultTopic: resultTopic,
		RoutingHint: routingHint,
	}
	if pc, ok := cmd.(domain.IProcessCommand); ok {
		wire.ProcessID = pc.GetProcessID()
	}

	return json.Marshal(wire)
}

// 接口实现检查
var (
	_ IDecoder = (*JSONCodec)(nil)
	_ IEncoder = (*JSONCodec)(nil)
)

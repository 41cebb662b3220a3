// Package codec 提供命令信封的编解码与命令类型注册表
package codec

import (
	"fmt"
	"sync"
)

// PayloadFactory 命令载荷工厂函数
//
// 返回载荷结构体指针，供 JSON 反序列化填充。
type PayloadFactory func() any

// registration 单个命令类型的注册信息
type registration struct {
	commandType string
	factory     PayloadFactory
}

// CommandRegistry 命令类型注册表
//
// 维护类型码到命令类型描述（名称 + 载荷工厂）的映射。
// 类型码通常是字符串；数字类型码以十进制字符串形式注册。
// 启动时填充，解码时查询。
type CommandRegistry struct {
	byCode map[string]registration
	byName map[string]string // commandType -> code，编码时反查
	mutex  sync.RWMutex
}

// NewCommandRegistry 创建注册表
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byCode: make(map[string]registration),
		byName: make(map[string]string),
	}
}

// Register 注册命令类型
func (r *CommandRegistry) Register(code, commandType string, factory PayloadFactory) error {
	if code == "" {
		return fmt.Errorf("type code cannot be empty")
	}
	if commandType == "" {
		return fmt.Errorf("command type cannot be empty for code %s", code)
	}
	if factory == nil {
		return fmt.Errorf("payload factory cannot be nil for code %s", code)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.byCode[code]; exists {
		return fmt.Errorf("type code already registered: %s", code)
	}

	instance := factory()
	if instance == nil {
		return fmt.Errorf("payload factory returned nil for code %s", code)
	}

	r.byCode[code] = registration{commandType: commandType, factory: factory}
	r.byName[commandType] = code
	return nil
}

// MustRegister 注册命令类型（失败 panic）
func (r *CommandRegistry) MustRegister(code, commandType string, factory PayloadFactory) {
	if err := r.Register(code, commandType, factory); err != nil {
		panic(err)
	}
}

// Resolve 按类型码解析命令类型名称与新的载荷实例
func (r *CommandRegistry) Resolve(code string) (string, any, error) {
	r.mutex.RLock()
	reg, exists := r.byCode[code]
	r.mutex.RUnlock()

	if !exists {
		return "", nil, fmt.Errorf("unknown command type code: %s", code)
	}
	return reg.commandType, reg.factory(), nil
}

// CodeOf 按命令类型名称反查类型码
func (r *CommandRegistry) CodeOf(commandType string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	code, ok := r.byName[commandType]
	return code, ok
}

// Has 检查类型码是否已注册
func (r *CommandRegistry) Has(code string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, exists := r.byCode[code]
	return exists
}

// Codes 返回所有已注册的类型码
func (r *CommandRegistry) Codes() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	return codes
}

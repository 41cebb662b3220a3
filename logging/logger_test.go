package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

// TestFieldConstructors 测试字段构造函数
func TestFieldConstructors(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		wantKey string
	}{
		{name: "String字段", field: String("name", "test"), wantKey: "name"},
		{name: "Int字段", field: Int("count", 123), wantKey: "count"},
		{name: "Int64字段", field: Int64("id", int64(456)), wantKey: "id"},
		{name: "Bool字段", field: Bool("active", true), wantKey: "active"},
		{name: "Any字段", field: Any("data", map[string]int{"a": 1}), wantKey: "data"},
		{name: "Error字段", field: Error(errors.New("boom")), wantKey: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Key != tt.wantKey {
				t.Errorf("Key = %s, 期望 %s", tt.field.Key, tt.wantKey)
			}
			if tt.field.Value == nil {
				t.Error("Value为nil")
			}
		})
	}
}

// TestStdLogger_Output 测试标准Logger输出格式
func TestStdLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	logger := NewStdLogger("test")
	ctx := context.Background()

	logger.Info(ctx, "delivery received", String("command_id", "cmd-1"))

	output := buf.String()
	if !strings.Contains(output, "[INFO]") {
		t.Error("输出不包含[INFO]")
	}
	if !strings.Contains(output, "delivery received") {
		t.Error("输出不包含消息")
	}
	if !strings.Contains(output, "command_id=cmd-1") {
		t.Error("输出不包含字段")
	}
}

// TestStdLogger_WithFields 测试WithFields派生
func TestStdLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	logger := NewStdLogger("test")
	derived := logger.WithFields(String("component", "consume.consumer"))

	derived.Warn(context.Background(), "duplicate command dropped", String("command_id", "cmd-2"))

	output := buf.String()
	if !strings.Contains(output, "component=consume.consumer") {
		t.Error("输出不包含component字段")
	}
	if !strings.Contains(output, "command_id=cmd-2") {
		t.Error("输出不包含command_id字段")
	}

	// 原Logger的fields应该不变
	if len(logger.fields) != 0 {
		t.Error("WithFields改变了原Logger的fields")
	}
}

// TestComponentLogger 测试组件Logger派生
func TestComponentLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	SetLogger(NewStdLogger(""))
	logger := ComponentLogger("consume.tracker")
	logger.Info(context.Background(), "started")

	if !strings.Contains(buf.String(), "component=consume.tracker") {
		t.Error("输出不包含component字段")
	}
}

// TestNoopLogger 测试NoopLogger
func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	ctx := context.Background()

	logger.Debug(ctx, "test")
	logger.Info(ctx, "test")
	logger.Warn(ctx, "test")
	logger.Error(ctx, "test")

	if logger.WithFields(String("key", "value")) != logger {
		t.Error("NoopLogger.WithFields应该返回自身")
	}
}

// TestGlobalLogger 测试全局Logger
func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	testLogger := NewNoopLogger()
	SetLogger(testLogger)

	if GetLogger() != testLogger {
		t.Error("全局Logger未正确设置")
	}
}

// TestLoggerInterface 验证接口实现
func TestLoggerInterface(t *testing.T) {
	var _ Logger = (*StdLogger)(nil)
	var _ Logger = (*NoopLogger)(nil)
}

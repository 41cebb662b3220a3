package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"cmdgate/domain"
)

// TestClassify 测试错误分类
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil错误",
			err:  nil,
			want: "",
		},
		{
			name: "AppError取错误码",
			err:  NewError(ErrCodeDecode, "bad envelope"),
			want: "DECODE_ERROR",
		},
		{
			name: "聚合未找到",
			err:  domain.NewAggregateNotFoundError("Order", "order-9"),
			want: "AGGREGATE_NOT_FOUND",
		},
		{
			name: "聚合重复跟踪",
			err:  domain.NewDuplicateAggregateError("agg-1"),
			want: "DUPLICATE_AGGREGATE",
		},
		{
			name: "包装后的聚合错误",
			err:  fmt.Errorf("load failed: %w", domain.NewAggregateNotFoundError("Order", "order-9")),
			want: "AGGREGATE_NOT_FOUND",
		},
		{
			name: "未识别错误",
			err:  stdErrors.New("something odd"),
			want: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

// TestAppError_Is 测试错误码匹配
func TestAppError_Is(t *testing.T) {
	err := WrapError(stdErrors.New("boom"), ErrCodeQueue, "publish failed")
	if !IsErrorCode(err, ErrCodeQueue) {
		t.Error("IsErrorCode应该匹配QUEUE_ERROR")
	}
	if IsErrorCode(err, ErrCodeDecode) {
		t.Error("IsErrorCode不应匹配DECODE_ERROR")
	}
}

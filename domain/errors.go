package domain

import "fmt"

// 常见聚合错误哨兵（用于 errors.Is 比较）
var (
	ErrAggregateNotFound  = &AggregateError{Code: "AGGREGATE_NOT_FOUND", Message: "aggregate not found"}
	ErrDuplicateAggregate = &AggregateError{Code: "DUPLICATE_AGGREGATE", Message: "aggregate already tracked"}
	ErrInvalidAggregateID = &AggregateError{Code: "INVALID_AGGREGATE_ID", Message: "invalid aggregate id"}
)

// AggregateError 聚合错误
type AggregateError struct {
	Code        string
	Message     string
	AggregateID string
	Cause       error
}

func (e *AggregateError) Error() string {
	msg := e.Message
	if e.AggregateID != "" {
		msg = fmt.Sprintf("%s (aggregate %s)", msg, e.AggregateID)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *AggregateError) Unwrap() error {
	return e.Cause
}

// Is 基于错误码匹配，支持与哨兵错误比较
func (e *AggregateError) Is(target error) bool {
	t, ok := target.(*AggregateError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAggregateNotFoundError 创建聚合未找到错误
func NewAggregateNotFoundError(aggregateType, id string) *AggregateError {
	return &AggregateError{
		Code:        "AGGREGATE_NOT_FOUND",
		Message:     fmt.Sprintf("aggregate %s/%s not found", aggregateType, id),
		AggregateID: id,
	}
}

// NewDuplicateAggregateError 创建聚合重复跟踪错误
func NewDuplicateAggregateError(id string) *AggregateError {
	return &AggregateError{
		Code:        "DUPLICATE_AGGREGATE",
		Message:     fmt.Sprintf("aggregate %s already tracked in this context", id),
		AggregateID: id,
	}
}

// NewInvalidAggregateIDError 创建非法聚合 ID 错误
func NewInvalidAggregateIDError(reason string) *AggregateError {
	return &AggregateError{
		Code:    "INVALID_AGGREGATE_ID",
		Message: reason,
	}
}

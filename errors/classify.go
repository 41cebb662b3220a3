package errors

import (
	stdErrors "errors"

	"cmdgate/domain"
)

// Classify 将任意错误归一化为异常类别标签
//
// 设计目标：
//   - 结果通知中的 exception_kind 字段统一来自该函数，避免各处散落的字符串；
//   - 保留原始错误由调用方记录日志，这里只负责分类；
//   - 仅覆盖消费侧常见的错误类型，未识别的错误一律归为 INTERNAL_ERROR。
//
// 注意：
//   - 如果传入的 err 已经是 IError，直接取其错误码；
//   - nil 错误返回空标签。
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if appErr, ok := err.(IError); ok {
		return string(appErr.Code())
	}

	// 领域聚合错误
	var aggErr *domain.AggregateError
	if stdErrors.As(err, &aggErr) {
		return aggErr.Code
	}

	// 未识别的错误统一归为内部错误
	return string(ErrCodeInternal)
}

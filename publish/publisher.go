// Package publish 提供结果通知的出站发布实现。
//
// 消费侧只依赖 consume.IResultPublisher 接口，本包给出
// NATS JetStream 与 Redis Streams 两种传输的实现。
package publish

import (
	"encoding/json"

	"cmdgate/consume"
	"cmdgate/errors"
)

// encodeNotification 序列化结果通知
func encodeNotification(notification *consume.ResultNotification) ([]byte, error) {
	if notification == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "notification cannot be nil")
	}
	if notification.CommandID == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "notification command_id cannot be empty")
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodePublish, "failed to marshal notification")
	}
	return data, nil
}

package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cmdgate/consume"
)

func TestEncodeNotification(t *testing.T) {
	now := time.Now()
	notification := &consume.ResultNotification{
		ID:          "n-1",
		CommandID:   "cmd-1",
		AggregateID: "order-1",
		ProcessID:   "saga-7",
		Status:      consume.StatusSuccess,
		RoutingHint: "orders-es",
		CompletedAt: now,
	}

	data, err := encodeNotification(notification)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "cmd-1", decoded["command_id"])
	require.Equal(t, "saga-7", decoded["process_id"])
	require.Equal(t, "success", decoded["status"])
	// 路由提示使用信封上的原始字段名
	require.Equal(t, "orders-es", decoded["event_handled"])
	// 成功通知不携带异常字段
	require.NotContains(t, decoded, "exception_kind")
	require.NotContains(t, decoded, "message")
}

func TestEncodeNotification_Failure(t *testing.T) {
	notification := &consume.ResultNotification{
		ID:            "n-2",
		CommandID:     "cmd-2",
		Status:        consume.StatusFailed,
		ExceptionKind: "AGGREGATE_NOT_FOUND",
		Message:       "aggregate order-9 not found",
		CompletedAt:   time.Now(),
	}

	data, err := encodeNotification(notification)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "failed", decoded["status"])
	require.Equal(t, "AGGREGATE_NOT_FOUND", decoded["exception_kind"])
}

func TestEncodeNotification_Validation(t *testing.T) {
	_, err := encodeNotification(nil)
	require.Error(t, err)

	_, err = encodeNotification(&consume.ResultNotification{ID: "n-3"})
	require.Error(t, err)
}

func TestNewNATSPublisher_Validation(t *testing.T) {
	_, err := NewNATSPublisher(nil, nil)
	require.Error(t, err)
}

func TestNewRedisStreamsPublisher_Validation(t *testing.T) {
	_, err := NewRedisStreamsPublisher(nil, nil)
	require.Error(t, err)
}

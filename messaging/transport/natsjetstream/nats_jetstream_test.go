package natsjetstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cmdgate/messaging"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})

	require.Equal(t, "CMDGATE", client.cfg.Stream)
	require.Equal(t, "commands.", client.cfg.SubjectPrefix)
	require.Equal(t, "cmdgate-", client.cfg.DurablePrefix)
	require.Equal(t, 30*time.Second, client.cfg.AckWait)
	require.Equal(t, 1024, client.cfg.MaxAckPending)
}

func TestClient_SubjectName(t *testing.T) {
	client := NewClient(Config{SubjectPrefix: "cmd."})
	require.Equal(t, "cmd.orders", client.subjectName("orders"))
}

func TestClient_SubscribeValidation(t *testing.T) {
	client := NewClient(Config{})
	handler := func(ctx context.Context, d messaging.Delivery) error { return nil }

	require.Error(t, client.Subscribe("", handler))
	require.Error(t, client.Subscribe("orders", nil))

	require.NoError(t, client.Subscribe("orders", handler))
	// 重复订阅被拒绝
	require.Error(t, client.Subscribe("orders", handler))
}

func TestClient_PublishNotRunning(t *testing.T) {
	client := NewClient(Config{})
	require.Error(t, client.Publish(context.Background(), "orders", []byte("{}")))
}

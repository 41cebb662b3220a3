package redisstreams

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestDecodeBody(t *testing.T) {
	entry := redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"body": `{"command_id":"cmd-1"}`,
	}}
	body, err := decodeBody(entry)
	require.NoError(t, err)
	require.JSONEq(t, `{"command_id":"cmd-1"}`, string(body))
}

func TestDecodeBodyMissing(t *testing.T) {
	entry := redis.XMessage{ID: "2-0", Values: map[string]interface{}{}}
	_, err := decodeBody(entry)
	require.Error(t, err)
}

func TestDecodeBodyUnexpectedType(t *testing.T) {
	entry := redis.XMessage{ID: "3-0", Values: map[string]interface{}{
		"body": 42,
	}}
	_, err := decodeBody(entry)
	require.Error(t, err)
}

func TestIsBusyGroup(t *testing.T) {
	require.True(t, redisBusyGroup("BUSYGROUP Consumer Group name already exists"))
	require.False(t, redisBusyGroup("ERR something else"))
}

func TestConfigDefaults(t *testing.T) {
	c, err := NewClient(Config{Addr: "localhost:6379"})
	require.NoError(t, err)
	require.Equal(t, "commands:", c.cfg.StreamPrefix)
	require.Equal(t, "cmdgate", c.cfg.GroupName)
	require.NotEmpty(t, c.cfg.ConsumerName)
	require.Positive(t, c.cfg.VisibilityTimeout)
	require.Positive(t, c.cfg.ReadCount)
}

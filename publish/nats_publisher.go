package publish

import (
	"context"

	"github.com/nats-io/nats.go"

	"cmdgate/consume"
	"cmdgate/errors"
	"cmdgate/logging"
)

// NATSPublisher 基于 NATS 的结果通知发布器
//
// 结果通知是 fire-and-forget 的出站消息，用核心 NATS 发布即可；
// 需要持久化结果流时在配置中启用 JetStream。
type NATSPublisher struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
	logger        logging.Logger
}

// NATSPublisherConfig NATS 发布器配置
type NATSPublisherConfig struct {
	// SubjectPrefix 主题前缀（默认："results."）
	SubjectPrefix string

	// UseJetStream 是否经由 JetStream 发布（持久化结果流）
	UseJetStream bool

	// Logger 组件日志
	Logger logging.Logger
}

// NewNATSPublisher 创建 NATS 结果通知发布器
//
// 连接由调用方管理，发布器不负责关闭。
func NewNATSPublisher(conn *nats.Conn, config *NATSPublisherConfig) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "nats connection cannot be nil")
	}
	if config == nil {
		config = &NATSPublisherConfig{}
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "results."
	}
	if config.Logger == nil {
		config.Logger = logging.ComponentLogger("publish.nats")
	}

	p := &NATSPublisher{
		conn:          conn,
		subjectPrefix: config.SubjectPrefix,
		logger:        config.Logger,
	}
	if config.UseJetStream {
		js, err := conn.JetStream()
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodePublish, "failed to create jetstream context")
		}
		p.js = js
	}
	return p, nil
}

// Publish 将结果通知发布到指定主题
func (p *NATSPublisher) Publish(ctx context.Context, notification *consume.ResultNotification, topic string) error {
	data, err := encodeNotification(notification)
	if err != nil {
		return err
	}

	subject := p.subjectPrefix + topic
	if p.js != nil {
		_, err = p.js.Publish(subject, data)
	} else {
		err = p.conn.Publish(subject, data)
	}
	if err != nil {
		return errors.WrapError(err, errors.ErrCodePublish, "failed to publish notification")
	}

	p.logger.Debug(ctx, "result notification published",
		logging.String("command_id", notification.CommandID),
		logging.String("subject", subject))
	return nil
}

var _ consume.IResultPublisher = (*NATSPublisher)(nil)

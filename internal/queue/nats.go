package queue

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NATS transports task payloads over a NATS subject. Workers join a queue
// group so one instance handles each delivery; a handler error is logged and
// the payload republished, giving at-least-once semantics across instances.
type NATS struct {
	conn    *nats.Conn
	subject string
	group   string
	logger  *zap.Logger
	sub     *nats.Subscription
}

// NewNATS connects to the NATS server at url.
func NewNATS(url, subject, group string, logger *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to nats at %s", url)
	}
	return &NATS{conn: conn, subject: subject, group: group, logger: logger}, nil
}

func (n *NATS) Publish(_ context.Context, payload []byte) error {
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return errors.Wrapf(err, "publish to %s", n.subject)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, handle Handler) error {
	sub, err := n.conn.QueueSubscribe(n.subject, n.group, func(msg *nats.Msg) {
		if err := handle(ctx, msg.Data); err != nil {
			n.logger.Warn("task handler failed, republishing",
				zap.String("subject", n.subject),
				zap.Error(err),
			)
			if pubErr := n.conn.Publish(n.subject, msg.Data); pubErr != nil {
				n.logger.Error("republish failed, task delivery lost",
					zap.String("subject", n.subject),
					zap.Error(pubErr),
				)
			}
		}
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", n.subject)
	}
	n.sub = sub
	return nil
}

func (n *NATS) Close() error {
	if n.sub != nil {
		if err := n.sub.Drain(); err != nil {
			n.logger.Warn("draining nats subscription", zap.Error(err))
		}
	}
	n.conn.Close()
	return nil
}

// Package natsfeed accepts ingest envelopes published on a NATS subject.
//
// Receivers that already relay over a NATS bus publish the same JSON body
// they would POST. Each message is processed by the ingest service; when
// the publisher used request/reply it gets {"status":N,"reason":"..."}
// back.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"wxaloft/internal/ingest"
)

// Config holds NATS settings.
type Config struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	Subject        string `toml:"subject"`
	Queue          string `toml:"queue"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Processor handles one ingest body.
type Processor interface {
	Process(ctx context.Context, body []byte) ingest.Result
}

// Reply is the response sent to request/reply publishers.
type Reply struct {
	Status int    `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Feed is a live queue subscription.
type Feed struct {
	nc  *nats.Conn
	sub *nats.Subscription
	log *zap.Logger
}

// Connect dials the server and subscribes to cfg.Subject in queue group
// cfg.Queue so replicas share the load.
func Connect(cfg Config, p Processor, log *zap.Logger) (*Feed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("wxaloftd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	sub, err := nc.QueueSubscribe(cfg.Subject, cfg.Queue, Handler(p, timeout, log))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	log.Info("nats feed subscribed", zap.String("subject", cfg.Subject), zap.String("queue", cfg.Queue))
	return &Feed{nc: nc, sub: sub, log: log}, nil
}

// Close drains the subscription, letting in-flight messages finish.
func (f *Feed) Close() error {
	if err := f.sub.Drain(); err != nil {
		f.nc.Close()
		return fmt.Errorf("drain subscription: %w", err)
	}
	return f.nc.Drain()
}

// Handler processes each message and answers it if a reply subject is set.
func Handler(p Processor, timeout time.Duration, log *zap.Logger) nats.MsgHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res := p.Process(ctx, m.Data)
		if m.Reply == "" {
			return
		}
		if err := m.Respond(EncodeReply(res)); err != nil {
			log.Warn("unable to reply", zap.String("reply", m.Reply), zap.Error(err))
		}
	}
}

// EncodeReply renders a Result as the JSON reply body.
func EncodeReply(res ingest.Result) []byte {
	b, _ := json.Marshal(Reply{Status: res.Status, Reason: res.Reason})
	return b
}

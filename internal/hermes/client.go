// Package hermes connects curator to NATS for row events, submissions and
// remote instruction updates.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	logger = logger.With("component", "hermes")
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.Name("curator"),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Handler receives one NATS message. A panicking handler is logged and the
// subscription keeps delivering.
type Handler func(subject string, data []byte)

// Publish sends data as JSON on subject. Row events are fire-and-forget; use
// Flush when delivery to the server must be confirmed.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.logger.Debug("published", "subject", subject, "bytes", len(payload))
	return nil
}

func (c *Client) Subscribe(subject string, handler Handler) error {
	deliver := guard(handler, c.logger)
	_, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		deliver(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func guard(h Handler, logger *slog.Logger) Handler {
	return func(subject string, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("message handler panicked", "subject", subject, "panic", r)
			}
		}()
		h(subject, data)
	}
}

// Flush waits until buffered publishes reach the server. ctx must carry a deadline.
func (c *Client) Flush(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so in-flight instruction updates finish, then
// closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}

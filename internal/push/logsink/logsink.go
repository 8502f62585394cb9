// Package logsink is a push.Client that writes messages to the log instead of
// delivering them. It backs local runs without provider credentials.
package logsink

import (
	"context"
	"log/slog"

	"github.com/example/lounge-reconciler/internal/push"
)

// Client logs each message at info level.
type Client struct {
	logger *slog.Logger
}

// New returns a logging client.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// Send implements push.Client.
func (c *Client) Send(ctx context.Context, msg push.Message) error {
	if err := ctx.Err(); err != nil {
		return push.Fail(push.KindTransient, err)
	}
	c.logger.InfoContext(ctx, "push message",
		slog.String("title", msg.Title),
		slog.String("body", msg.Body),
		slog.String("notification_type", msg.Data["notificationType"]),
		slog.String("priority", string(msg.Hints.Priority)),
		slog.Int("token_len", len(msg.Token)))
	return nil
}

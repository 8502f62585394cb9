// Package report publishes job run reports for operators.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/example/lounge-reconciler/internal/jobs"
)

// LogSink writes each report as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish implements scheduler.Sink.
func (s *LogSink) Publish(ctx context.Context, r jobs.Report) error {
	s.logger.InfoContext(ctx, "run report",
		slog.String("job", r.Job),
		slog.String("run_id", r.RunID),
		slog.String("window", r.Window.String()),
		slog.Int("matched", r.Matched),
		slog.Int("notified", r.Notified),
		slog.Int("marked", r.Marked),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
		slog.Int("chunks", r.Chunks),
		slog.Duration("elapsed", r.Duration()),
	)
	return nil
}

// PubSubSink publishes each report as JSON to a topic.
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink publishes to topicID on client.
func NewPubSubSink(client *pubsub.Client, topicID string) (*PubSubSink, error) {
	if client == nil {
		return nil, errors.New("report: pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("report: topic is required")
	}
	return &PubSubSink{topic: client.Topic(topicID)}, nil
}

// Publish implements scheduler.Sink. It blocks until the server acknowledges
// the message.
func (s *PubSubSink) Publish(ctx context.Context, r jobs.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job":    r.Job,
			"run_id": r.RunID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("report: publish %s: %w", r.RunID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (s *PubSubSink) Stop() {
	s.topic.Stop()
}

// Fanout publishes to every sink and joins their errors.
type Fanout []interface {
	Publish(ctx context.Context, r jobs.Report) error
}

// Publish implements scheduler.Sink.
func (f Fanout) Publish(ctx context.Context, r jobs.Report) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package events

import (
	"context"
	"log/slog"
)

// LogPublisher is used when EVENTS_TRANSPORT=none: events are logged and marked done.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType string, key, data []byte) error {
	p.log.DebugContext(ctx, "event", slog.String("type", eventType), slog.String("key", string(key)), slog.String("body", string(data)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

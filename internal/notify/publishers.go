package notify

import (
	"context"
	"errors"
	"log/slog"
)

// LogPublisher stands in for the broker when none is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, event Event) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "notification publish skipped: no broker configured",
		"kind", event.Kind,
		"appeal_id", event.AppealID,
		"recipients", len(event.Recipients))
	return nil
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster is the websocket hub seen from this package.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// HubPublisher mirrors events to connected admin sessions. Donor contact details
// never leave the server this way.
type HubPublisher struct {
	Hub Broadcaster
}

func (p HubPublisher) Publish(_ context.Context, event Event) error {
	event.Recipients = nil
	event.Message = ""
	return p.Hub.BroadcastJSON(event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

package audit

import "context"

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NoOpLogger discards events
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *Event) error { return nil }

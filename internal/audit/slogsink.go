package audit

import (
	"context"
	"log/slog"
)

// Compile-time interface check.
var _ Sink = (*SlogSink)(nil)

// SlogSink writes audit events to the process log via [log/slog]. It is the
// default sink for development and for deployments that ship logs to an
// external aggregator instead of a database.
//
// The zero value logs through [slog.Default].
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink writing through logger. A nil logger means
// [slog.Default].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Log implements [Sink].
func (s *SlogSink) Log(ctx context.Context, ev Event) error {
	l := s.logger
	if l == nil {
		l = slog.Default()
	}

	level := slog.LevelInfo
	switch ev.Severity {
	case SeverityMedium:
		level = slog.LevelWarn
	case SeverityHigh, SeverityCritical:
		level = slog.LevelError
	}

	l.LogAttrs(ctx, level, "audit",
		slog.String("action", ev.Action),
		slog.String("actor", ev.ActorID),
		slog.String("org", ev.OrganizationID),
		slog.String("resource_type", ev.ResourceType),
		slog.String("resource_id", ev.ResourceID),
		slog.String("severity", string(ev.Severity)),
		slog.Any("details", ev.Details),
		slog.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

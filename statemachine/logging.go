package statemachine

import (
	"context"
	"log/slog"
)

// Logger receives the diagnostics of a machine. Unhandled events are
// warnings; schema violations are errors. Neither changes the machine.
type Logger interface {
	EventUnhandled(ctx context.Context, machine, state, event string)
	SchemaViolation(ctx context.Context, machine, state, event string, err error)
	TransitionCommitted(ctx context.Context, machine, from, to, event string)
	EffectStarted(ctx context.Context, machine, effect string)
	EffectStopped(ctx context.Context, machine, effect string)
	PublishFailed(ctx context.Context, machine string, err error)
}

// NopLogger discards everything. It is the default.
type NopLogger struct{}

func (NopLogger) EventUnhandled(context.Context, string, string, string)              {}
func (NopLogger) SchemaViolation(context.Context, string, string, string, error)      {}
func (NopLogger) TransitionCommitted(context.Context, string, string, string, string) {}
func (NopLogger) EffectStarted(context.Context, string, string)                       {}
func (NopLogger) EffectStopped(context.Context, string, string)                       {}
func (NopLogger) PublishFailed(context.Context, string, error)                        {}

// SlogLogger implements Logger using slog.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger backed by l, or by slog.Default() when l is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}

	return &SlogLogger{
		logger: l,
	}
}

func (l *SlogLogger) EventUnhandled(ctx context.Context, machine, state, event string) {
	l.logger.WarnContext(ctx, "Event not handled in current state",
		"machine", machine,
		"state", state,
		"event", event,
	)
}

func (l *SlogLogger) SchemaViolation(ctx context.Context, machine, state, event string, err error) {
	l.logger.ErrorContext(ctx, "Schema violation, state left unchanged",
		"machine", machine,
		"state", state,
		"event", event,
		"error", err,
	)
}

func (l *SlogLogger) TransitionCommitted(ctx context.Context, machine, from, to, event string) {
	fields := []any{
		"machine", machine,
		"from", from,
		"to", to,
	}

	if event != "" {
		fields = append(fields, "event", event)
	}

	if traceID, spanID := extractTraceContext(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID, "span_id", spanID)
	}

	l.logger.InfoContext(ctx, "Transition committed", fields...)
}

func (l *SlogLogger) EffectStarted(ctx context.Context, machine, effect string) {
	l.logger.DebugContext(ctx, "Effect started",
		"machine", machine,
		"effect", effect,
	)
}

func (l *SlogLogger) EffectStopped(ctx context.Context, machine, effect string) {
	l.logger.DebugContext(ctx, "Effect stopped",
		"machine", machine,
		"effect", effect,
	)
}

func (l *SlogLogger) PublishFailed(ctx context.Context, machine string, err error) {
	l.logger.ErrorContext(ctx, "Publishing change failed",
		"machine", machine,
		"error", err,
	)
}

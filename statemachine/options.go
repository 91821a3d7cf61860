package statemachine

import (
	"context"
	"log/slog"
)

// ContextPolicy decides how a context-only update is applied.
type ContextPolicy int

const (
	// ReplaceContext makes the returned context the whole new context.
	ReplaceContext ContextPolicy = iota
	// MergeContext copies the returned keys over the current context.
	MergeContext
)

func (p ContextPolicy) String() string {
	switch p {
	case ReplaceContext:
		return "replace"
	case MergeContext:
		return "merge"
	default:
		return "unknown"
	}
}

// ParseContextPolicy parses "replace" or "merge". The empty string is replace.
func ParseContextPolicy(s string) (ContextPolicy, error) {
	switch s {
	case "", "replace":
		return ReplaceContext, nil
	case "merge":
		return MergeContext, nil
	default:
		return ReplaceContext, ErrInvalidContextPolicy
	}
}

// Hooks observe a machine from the dispatching goroutine. They must not block.
type Hooks struct {
	// OnCommit is called after every commit that changed the state or context.
	OnCommit func(ctx context.Context, change Change)
	// OnUnhandled is called when the current state does not handle an event.
	OnUnhandled func(ctx context.Context, state, event string)
	// OnRejected is called when an event was rejected as a schema violation.
	OnRejected func(ctx context.Context, state, event string, err error)
}

type options struct {
	logger     Logger
	policy     ContextPolicy
	scheduler  func() Scheduler
	hooks      []Hooks
	publishers []Publisher
}

func defaultOptions() options {
	return options{
		logger: NopLogger{},
		policy: ReplaceContext,
		scheduler: func() Scheduler {
			return NewQueue()
		},
	}
}

// Option configures a definition or a single machine.
type Option func(*options)

// WithLogger sets the diagnostics logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSlogLogger logs diagnostics through l.
func WithSlogLogger(l *slog.Logger) Option {
	return WithLogger(NewSlogLogger(l))
}

// WithContextPolicy sets how context-only updates are applied.
func WithContextPolicy(policy ContextPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithScheduler sets the scheduler factory. Each machine gets its own scheduler.
func WithScheduler(factory func() Scheduler) Option {
	return func(o *options) {
		if factory != nil {
			o.scheduler = factory
		}
	}
}

// WithPoolScheduler runs effects off the dispatching goroutine.
func WithPoolScheduler() Option {
	return WithScheduler(func() Scheduler {
		return NewPoolScheduler()
	})
}

// WithHooks adds lifecycle hooks. It may be given more than once.
func WithHooks(hooks Hooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithPublisher adds a publisher of committed changes. Publishers are owned
// by the caller and are not closed with the machine.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publishers = append(o.publishers, p)
		}
	}
}

// Package actions provides composable effects and handlers for state machine
// workflows: timers, background work with retries, sequencing, and
// conditional handlers, plus their YAML builders.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/typestate/statemachine"
)

var (
	// ErrActionFailedAfterRetries is returned when an action fails after all retry attempts.
	ErrActionFailedAfterRetries = errors.New("action failed after retries")
	// ErrConditionNotMet is returned when no branch of a conditional handler applies.
	ErrConditionNotMet = errors.New("condition not met")
	// ErrInvalidEnumValue is returned when a value is not in the allowed set of values.
	ErrInvalidEnumValue = errors.New("invalid enum value")
)

// Entering adapts an effect to an entry hook.
func Entering(effect statemachine.Effect) statemachine.EntryHook {
	return func(ctx context.Context, e statemachine.Entry) statemachine.Cleanup {
		return effect(ctx, e.Dispatcher)
	}
}

// Leaving adapts an effect to an exit hook.
func Leaving(effect statemachine.Effect) statemachine.ExitHook {
	return func(ctx context.Context, e statemachine.Exit) statemachine.Cleanup {
		return effect(ctx, e.Dispatcher)
	}
}

// After dispatches event once delay has elapsed, unless the effect is stopped first.
//
// Example:
//
//	State("polling", func(s *statemachine.StateBuilder) {
//	    s.OnEntry(actions.Entering(actions.After(5*time.Second, "timeout")))
//	})
func After(delay time.Duration, event string, payload ...any) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		ctx, cancel := context.WithCancel(ctx)

		timer := time.AfterFunc(delay, func() {
			if ctx.Err() == nil {
				d.Dispatch(event, payload...)
			}
		})

		return func() {
			cancel()
			timer.Stop()
		}
	}
}

// Every dispatches event at each interval until the effect is stopped.
func Every(interval time.Duration, event string, payload ...any) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		ctx, cancel := context.WithCancel(ctx)
		ticker := time.NewTicker(interval)

		go func() {
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if ctx.Err() != nil {
						return
					}

					d.Dispatch(event, payload...)
				}
			}
		}()

		return statemachine.Cleanup(cancel)
	}
}

// Work is a unit of background work whose result becomes an event payload.
type Work func(ctx context.Context) (any, error)

// Go runs work in the background. On success done is dispatched with the
// result as payload; on failure failed is dispatched with the error. Nothing
// is dispatched once the effect has been stopped, and stopping it cancels the
// context handed to work. An empty event name is never dispatched.
func Go(work Work, done, failed string) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		ctx, cancel := context.WithCancel(ctx)

		go func() {
			result, err := work(ctx)
			if ctx.Err() != nil {
				return
			}

			report(d, result, err, done, failed)
		}()

		return statemachine.Cleanup(cancel)
	}
}

func report(d *statemachine.Dispatcher, result any, err error, done, failed string) {
	switch {
	case err != nil && failed != "":
		d.Dispatch(failed, err)
	case err == nil && done != "":
		if result == nil {
			d.Dispatch(done)
		} else {
			d.Dispatch(done, result)
		}
	}
}

// Backoff configures Retry.
type Backoff struct {
	MaxAttempts       int           // default 3
	InitialDelay      time.Duration // default 1s
	MaxDelay          time.Duration // default 30s
	BackoffMultiplier float64       // default 2.0
	// RetryIf decides whether an error is worth another attempt. Nil retries every error.
	RetryIf func(error) bool
}

func (b Backoff) withDefaults() Backoff {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 3
	}

	if b.InitialDelay <= 0 {
		b.InitialDelay = time.Second
	}

	if b.MaxDelay <= 0 {
		b.MaxDelay = 30 * time.Second //nolint:mnd // Reasonable default max delay for exponential backoff
	}

	if b.BackoffMultiplier <= 0 {
		b.BackoffMultiplier = 2.0
	}

	return b
}

// Retry runs work in the background like Go, retrying failures with
// exponential backoff. failed receives the last error, wrapped in
// ErrActionFailedAfterRetries once every attempt is used up.
func Retry(work Work, backoff Backoff, done, failed string) statemachine.Effect {
	backoff = backoff.withDefaults()

	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		ctx, cancel := context.WithCancel(ctx)

		go func() {
			result, err := retry(ctx, work, backoff)
			if ctx.Err() != nil {
				return
			}

			report(d, result, err, done, failed)
		}()

		return statemachine.Cleanup(cancel)
	}
}

func retry(ctx context.Context, work Work, backoff Backoff) (any, error) {
	delay := backoff.InitialDelay

	for attempt := 1; ; attempt++ {
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}

		if backoff.RetryIf != nil && !backoff.RetryIf(err) {
			return nil, err
		}

		if attempt >= backoff.MaxAttempts {
			return nil, fmt.Errorf("%w: %d attempts: %w", ErrActionFailedAfterRetries, attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*backoff.BackoffMultiplier), backoff.MaxDelay)
	}
}

// Sequence runs effects one after another. Its cleanup runs theirs in reverse order.
func Sequence(effects ...statemachine.Effect) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		cleanups := make([]statemachine.Cleanup, 0, len(effects))

		for _, effect := range effects {
			if effect == nil {
				continue
			}

			if cleanup := effect(ctx, d); cleanup != nil {
				cleanups = append(cleanups, cleanup)
			}
		}

		return combine(cleanups)
	}
}

// Parallel starts effects concurrently and returns once every one of them
// has returned. Its cleanup runs theirs in reverse order of declaration.
func Parallel(effects ...statemachine.Effect) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		if len(effects) == 0 {
			return nil
		}

		cleanups := make([]statemachine.Cleanup, len(effects))
		pool := pond.NewPool(len(effects))

		for idx, effect := range effects {
			if effect == nil {
				continue
			}

			pool.Submit(func() {
				cleanups[idx] = effect(ctx, d)
			})
		}

		pool.StopAndWait()

		return combine(cleanups)
	}
}

func combine(cleanups []statemachine.Cleanup) statemachine.Cleanup {
	return func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cleanups[i] != nil {
				cleanups[i]()
			}
		}
	}
}

// Log writes msg when the effect starts and again when it is stopped.
func Log(logger *slog.Logger, level slog.Level, msg string, args ...any) statemachine.Effect {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, _ *statemachine.Dispatcher) statemachine.Cleanup {
		logger.Log(ctx, level, msg, args...)

		return func() {
			logger.Log(context.WithoutCancel(ctx), level, msg+" (stopped)", args...)
		}
	}
}

package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AnnotateError attaches slog key-value pairs to err. When the error is
// logged through a logger set up by this package, the pairs are added to
// the record. Returns nil if err is nil.
//
// Example:
//
//	if err := def.New(ctx, initial); err != nil {
//	    return logger.AnnotateError(err, "file", path, "initial", initial)
//	}
func AnnotateError(err error, args ...any) error {
	if err == nil {
		return nil
	}

	r := slog.NewRecord(time.Now(), slog.LevelDebug, "", 0)
	r.Add(args...)

	attrs := make([]slog.Attr, 0, r.NumAttrs())

	r.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)

		return true
	})

	return &annotatedError{err: err, attrs: attrs}
}

// ErrorAttrs returns the attributes attached to err and anything it wraps,
// outermost first.
func ErrorAttrs(err error) []slog.Attr {
	var attrs []slog.Attr

	for err != nil {
		var ae *annotatedError
		if !errors.As(err, &ae) {
			break
		}

		attrs = append(attrs, ae.attrs...)
		err = ae.err
	}

	return attrs
}

type annotatedError struct {
	err   error
	attrs []slog.Attr
}

func (a *annotatedError) Error() string {
	return a.err.Error()
}

func (a *annotatedError) Unwrap() error {
	return a.err
}

// annotatedErrors is a slog.Handler decorator that expands annotated errors
// into their attributes.
type annotatedErrors struct {
	inner slog.Handler
}

var _ slog.Handler = (*annotatedErrors)(nil)

func (s *annotatedErrors) Enabled(ctx context.Context, level slog.Level) bool {
	return s.inner.Enabled(ctx, level)
}

func (s *annotatedErrors) Handle(ctx context.Context, record slog.Record) error {
	var (
		attrs []slog.Attr
		extra []slog.Attr
	)

	record.Attrs(func(attr slog.Attr) bool {
		if err, ok := attr.Value.Any().(error); ok {
			if found := ErrorAttrs(err); len(found) > 0 {
				extra = append(extra, found...)
			}
		}

		attrs = append(attrs, attr)

		return true
	})

	if len(extra) == 0 {
		return s.inner.Handle(ctx, record)
	}

	r := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	r.AddAttrs(attrs...)
	r.AddAttrs(extra...)

	return s.inner.Handle(ctx, r)
}

func (s *annotatedErrors) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &annotatedErrors{inner: s.inner.WithAttrs(attrs)}
}

func (s *annotatedErrors) WithGroup(name string) slog.Handler {
	return &annotatedErrors{inner: s.inner.WithGroup(name)}
}

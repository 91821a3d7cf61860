// Package logger configures process-wide structured logging and carries
// logging values through contexts.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
)

// The default subsystem, set by ConfigureLogging.
var subsystem atomic.Value //nolint:gochecknoglobals

// configMutex serializes ConfigureLoggingWithOptions, which replaces the
// default slog and log loggers.
var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

const (
	keyMuted     contextKey = "mute"
	keySubsystem contextKey = "subsystem"
	keyValues    contextKey = "loggerValues"
)

// ErrInvalidLogOutput is returned when an invalid log output destination is specified.
var ErrInvalidLogOutput = errors.New("invalid log output")

// Options is used to configure logging.
type Options struct {
	Subsystem   string
	JSON        bool
	MinLevel    slog.Level
	LegacyLevel slog.Level
	Output      io.Writer
	// Extra receives every record as well, e.g. an OpenTelemetry log bridge.
	Extra slog.Handler
}

// Config is the environment form of Options.
type Config struct {
	JSON        bool       `env:"LOG_JSON"         envDefault:"false"`
	Level       slog.Level `env:"LOG_LEVEL"        envDefault:"info"`
	LegacyLevel slog.Level `env:"LEGACY_LOG_LEVEL" envDefault:"info"`
	Output      string     `env:"LOG_OUTPUT"       envDefault:"stdout"`
}

// LoadConfig reads the logging configuration from the environment.
func LoadConfig() (Config, error) {
	return env.ParseAs[Config]()
}

// Writer resolves the configured output name.
func (c Config) Writer() (io.Writer, error) {
	switch strings.ToLower(c.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogOutput, c.Output)
	}
}

// Option is a functional option for configuring logging via ConfigureLogging.
type Option func(*Options)

// WithOutput overrides the configured output.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithExtraHandler tees every record to h.
func WithExtraHandler(h slog.Handler) Option {
	return func(o *Options) {
		o.Extra = h
	}
}

// WithLevel overrides the configured minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) {
		o.MinLevel = level
	}
}

// ConfigureLogging configures logging for app from the environment and
// returns the new default logger.
func ConfigureLogging(app string, opts ...Option) (*slog.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	output, err := cfg.Writer()
	if err != nil {
		return nil, err
	}

	options := Options{
		Subsystem:   app,
		JSON:        cfg.JSON,
		MinLevel:    cfg.Level,
		LegacyLevel: cfg.LegacyLevel,
		Output:      output,
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options), nil
}

// ConfigureLoggingWithOptions configures logging for the application and
// returns the default logger. It modifies global state; concurrent calls are
// serialized.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.MinLevel}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if opts.Extra != nil {
		handler = &fanout{handlers: []slog.Handler{handler, opts.Extra}}
	}

	handler = &annotatedErrors{inner: handler}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Third party packages may still use the log package.
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(slog.NewLogLogger(handler, opts.LegacyLevel).Writer())

	subsystem.Store(opts.Subsystem)

	return logger
}

// WithMuted marks ctx so that Get returns a logger discarding everything.
func WithMuted(ctx context.Context, muted bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, keyMuted, muted)
}

func isMuted(ctx context.Context) bool {
	muted, ok := ctx.Value(keyMuted).(bool)

	return ok && muted
}

// WithSubsystem overrides the default subsystem for loggers obtained from ctx.
func WithSubsystem(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, keySubsystem, name)
}

// GetSubsystem returns the subsystem of ctx, or the default one.
func GetSubsystem(ctx context.Context) string {
	if ctx != nil {
		if sub, ok := ctx.Value(keySubsystem).(string); ok {
			return sub
		}
	}

	if sub, ok := subsystem.Load().(string); ok {
		return sub
	}

	return ""
}

// WithMachine adds the name and instance id of a machine to the logging
// values of ctx.
func WithMachine(ctx context.Context, name, id string) context.Context {
	return With(ctx, "machine", name, "machine_id", id)
}

// With returns a new context with the given values added. Loggers obtained
// from the context carry them.
func With(ctx context.Context, values ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(values) == 0 {
		return ctx
	}

	prev := getValues(ctx)
	vals := make([]any, 0, len(prev)+len(values))
	vals = append(vals, prev...)
	vals = append(vals, values...)

	return context.WithValue(ctx, keyValues, vals)
}

func getValues(ctx context.Context) []any {
	vals, _ := ctx.Value(keyValues).([]any)

	return vals
}

// Get returns the default logger decorated with the subsystem and values of
// the first non-nil context, if any.
func Get(ctx ...context.Context) *slog.Logger {
	realCtx := context.Background()

	for _, c := range ctx {
		if c != nil {
			realCtx = c

			break
		}
	}

	if isMuted(realCtx) {
		return nullLogger
	}

	logger := slog.Default()

	if sub := GetSubsystem(realCtx); sub != "" {
		logger = logger.With("subsystem", sub)
	}

	if vals := getValues(realCtx); len(vals) > 0 {
		logger = logger.With(vals...)
	}

	return logger
}

// nullHandler discards everything.
type nullHandler struct{}

func (n *nullHandler) Enabled(context.Context, slog.Level) bool { return false }

func (n *nullHandler) Handle(context.Context, slog.Record) error { return nil }

func (n *nullHandler) WithAttrs([]slog.Attr) slog.Handler { return n }

func (n *nullHandler) WithGroup(string) slog.Handler { return n }

var nullLogger = slog.New(&nullHandler{})

// fanout sends each record to every handler enabled for its level.
type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (f *fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error

	for _, h := range f.handlers {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}

	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &fanout{handlers: make([]slog.Handler, len(f.handlers))}
	for i, h := range f.handlers {
		out.handlers[i] = h.WithAttrs(attrs)
	}

	return out
}

func (f *fanout) WithGroup(name string) slog.Handler {
	out := &fanout{handlers: make([]slog.Handler, len(f.handlers))}
	for i, h := range f.handlers {
		out.handlers[i] = h.WithGroup(name)
	}

	return out
}

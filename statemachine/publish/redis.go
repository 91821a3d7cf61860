package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream changes are appended to unless WithStream is given.
const DefaultStream = "typestate:changes"

// Stream fields of every appended entry.
const (
	fieldID      = "id"
	fieldMachine = "machine"
	fieldEvent   = "event"
	fieldFrom    = "from"
	fieldTo      = "to"
	fieldOutcome = "outcome"
	fieldChange  = "change"
)

// Stream appends changes to a Redis stream with XADD. The flat fields allow
// filtering without decoding; the change field holds the full change as JSON.
type Stream struct {
	client     redis.UniversalClient
	stream     string
	perMachine bool
	maxLen     int64
}

// Option configures a Stream.
type Option func(*Stream)

// WithStream sets the stream key.
func WithStream(name string) Option {
	return func(s *Stream) {
		s.stream = name
	}
}

// WithStreamPerMachine appends the machine name to the stream key, so every
// schema gets its own stream.
func WithStreamPerMachine() Option {
	return func(s *Stream) {
		s.perMachine = true
	}
}

// WithMaxLen caps the stream at roughly n entries. Zero keeps everything.
func WithMaxLen(n int64) Option {
	return func(s *Stream) {
		s.maxLen = n
	}
}

// NewStream creates a stream publisher over an existing client. The client
// is owned by the caller.
func NewStream(client redis.UniversalClient, opts ...Option) *Stream {
	s := &Stream{
		client: client,
		stream: DefaultStream,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Key returns the stream key changes of machine are appended to.
func (s *Stream) Key(machine string) string {
	if s.perMachine && machine != "" {
		return s.stream + ":" + machine
	}

	return s.stream
}

// Publish appends change to the stream.
func (s *Stream) Publish(ctx context.Context, change statemachine.Change) error {
	body, err := json.Marshal(change)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	args := &redis.XAddArgs{
		Stream: s.Key(change.Machine),
		Values: map[string]any{
			fieldID:      change.ID.String(),
			fieldMachine: change.Machine,
			fieldEvent:   change.Event,
			fieldFrom:    change.From,
			fieldTo:      change.To,
			fieldOutcome: string(change.Outcome),
			fieldChange:  string(body),
		},
	}

	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	return nil
}

// Read returns up to count changes of the stream at key, oldest first,
// starting after the entry id after, or at the beginning when after is empty.
func (s *Stream) Read(ctx context.Context, key, after string, count int64) ([]statemachine.Change, error) {
	start := "-"
	if after != "" {
		start = "(" + after
	}

	messages, err := s.client.XRangeN(ctx, key, start, "+", count).Result()
	if err != nil {
		return nil, err
	}

	changes := make([]statemachine.Change, 0, len(messages))

	for _, msg := range messages {
		change, err := Decode(msg)
		if err != nil {
			return nil, err
		}

		changes = append(changes, change)
	}

	return changes, nil
}

// Decode parses the change stored in a stream entry.
func Decode(msg redis.XMessage) (statemachine.Change, error) {
	var change statemachine.Change

	raw, ok := msg.Values[fieldChange].(string)
	if !ok {
		return change, fmt.Errorf("%w: entry %s has no %s field", ErrMalformedMessage, msg.ID, fieldChange)
	}

	if err := json.Unmarshal([]byte(raw), &change); err != nil {
		return change, fmt.Errorf("%w: entry %s: %w", ErrMalformedMessage, msg.ID, err)
	}

	return change, nil
}

// Connect establishes a connection to a Redis server using cfg, retrying
// until the server answers a ping or the connect timeout expires.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	attempts := max(cfg.RetryAttempts, 1)

	var lastErr error

	for attempt := range attempts {
		client := redis.NewClient(opts)

		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return client, nil
		}

		_ = client.Close()

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, lastErr, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

package publish

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amp-labs/typestate/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doorDefinition(t *testing.T) *statemachine.Definition {
	t.Helper()

	def, err := statemachine.NewBuilder("door").
		WithContext(statemachine.Context{"opens": 0}).
		State("closed", func(s *statemachine.StateBuilder) {
			s.On("open", func(s *statemachine.Scope) statemachine.Transition {
				opens, _ := s.Context.GetInt("opens")

				return statemachine.Enter("open", s.Context.With("opens", opens+1))
			})
		}).
		State("open", func(s *statemachine.StateBuilder) {
			s.On("close", "closed")
		}).
		Build()
	require.NoError(t, err)

	return def
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestStreamPublish(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	stream := NewStream(client)

	m, err := doorDefinition(t).New(context.Background(), "closed", statemachine.WithPublisher(stream))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	m.Send("open")
	m.Send("knock") // not an event of the door, not published
	m.Send("close")

	changes, err := stream.Read(context.Background(), DefaultStream, "", 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "door", changes[0].Machine)
	assert.Equal(t, m.ID(), changes[0].MachineID)
	assert.Equal(t, "open", changes[0].Event)
	assert.Equal(t, "closed", changes[0].From)
	assert.Equal(t, "open", changes[0].To)
	assert.Equal(t, statemachine.OutcomeTransitioned, changes[0].Outcome)
	// JSON numbers decode as float64.
	assert.InDelta(t, 1, changes[0].Context["opens"], 0)

	assert.Equal(t, "close", changes[1].Event)
	assert.Equal(t, "closed", changes[1].To)

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "open", entries[0].Values[fieldEvent])
	assert.Equal(t, "transitioned", entries[0].Values[fieldOutcome])

	rest, err := stream.Read(context.Background(), DefaultStream, entries[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "close", rest[0].Event)
}

func TestStreamOptions(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	stream := NewStream(client, WithStream("events"), WithStreamPerMachine(), WithMaxLen(100))

	assert.Equal(t, "events:door", stream.Key("door"))
	assert.Equal(t, "events", stream.Key(""))

	err := stream.Publish(context.Background(), statemachine.Change{Machine: "door", Event: "open"})
	require.NoError(t, err)

	n, err := client.XLen(context.Background(), "events:door").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStreamPublishFailure(t *testing.T) {
	t.Parallel()

	mr, client := newRedis(t)
	stream := NewStream(client)

	mr.Close()

	err := stream.Publish(context.Background(), statemachine.Change{Machine: "door"})
	require.ErrorIs(t, err, ErrPublishFailed)
}

func TestPublishFailureDoesNotAffectMachine(t *testing.T) {
	t.Parallel()

	failing := statemachine.PublisherFunc(func(context.Context, statemachine.Change) error {
		return errors.New("broker down")
	})

	m, err := doorDefinition(t).New(context.Background(), "closed",
		statemachine.WithPublisher(failing),
		statemachine.WithSlogLogger(slogt.New(t)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	m.Send("open")
	assert.Equal(t, "open", m.State())
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	_, err := Decode(redis.XMessage{ID: "1-0", Values: map[string]any{}})
	require.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Decode(redis.XMessage{ID: "1-0", Values: map[string]any{fieldChange: "{"}})
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), RedisConfig{
		ConnectionURL:  "redis://" + mr.Addr() + "/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Connect(context.Background(), RedisConfig{ConnectionURL: "::", ConnectTimeout: time.Second})
	require.ErrorIs(t, err, ErrFailedToParseRedisConnString)
}

func TestConnectReportsPingError(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), RedisConfig{
		ConnectionURL:  "redis://" + addr + "/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	require.ErrorIs(t, err, ErrRedisNotReady)

	var opErr *net.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "dial", opErr.Op)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_STREAM", "changes")
	t.Setenv("REDIS_STREAM_PER_MACHINE", "true")

	cfg, err := LoadRedisConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.ConnectionURL)
	assert.Equal(t, "changes", cfg.Stream)
	assert.Equal(t, int64(10000), cfg.MaxLen)
	assert.Equal(t, 3, cfg.RetryAttempts)

	s := NewStream(nil, cfg.Options()...)
	assert.Equal(t, "changes:door", s.Key("door"))
	assert.Equal(t, int64(10000), s.maxLen)
}

func TestChannel(t *testing.T) {
	t.Parallel()

	ch := NewChannel()

	m, err := doorDefinition(t).New(context.Background(), "closed", statemachine.WithPublisher(ch))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	m.Send("open")
	m.Send("close")
	m.Send("open")

	assert.Equal(t, 3, ch.Len())

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	var events []string
	for change := range ch.Changes() {
		events = append(events, change.Event)
	}

	assert.Equal(t, []string{"open", "close", "open"}, events)
	assert.Equal(t, 0, ch.Len())
	require.ErrorIs(t, ch.Publish(context.Background(), statemachine.Change{}), ErrPublisherClosed)
}

func TestChannelPublishHonoursContext(t *testing.T) {
	t.Parallel()

	ch := NewChannel()
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the queue goroutine or the cancelled context wins; neither blocks.
	err := ch.Publish(ctx, statemachine.Change{Event: "x"})
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

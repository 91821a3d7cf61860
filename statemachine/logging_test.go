package statemachine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))

		records = append(records, rec)
	}

	return records
}

func TestSlogLoggerRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	m := newMachine(t, counterSchema("logged"), Initial{State: "counting", Context: Context{"count": 7}},
		WithSlogLogger(logger))

	m.Send("reset")
	m.Send("bogus")
	m.Send("increment")

	records := decodeRecords(t, &buf)

	var msgs []string
	for _, rec := range records {
		msgs = append(msgs, rec["msg"].(string))
	}

	assert.Contains(t, msgs, "Transition committed")
	assert.Contains(t, msgs, "Event not handled in current state")
	assert.Contains(t, msgs, "Schema violation, state left unchanged")

	for _, rec := range records {
		switch rec["msg"] {
		case "Event not handled in current state":
			assert.Equal(t, "WARN", rec["level"])
			assert.Equal(t, "reset", rec["event"])
			assert.Equal(t, "counting", rec["state"])
		case "Schema violation, state left unchanged":
			assert.Equal(t, "ERROR", rec["level"])
			assert.Equal(t, "bogus", rec["event"])
		case "Transition committed":
			assert.Equal(t, "logged", rec["machine"])
		}
	}
}

func TestSlogLoggerWithTestHandler(t *testing.T) {
	t.Parallel()

	m := newMachine(t, counterSchema("slogt"), Initial{State: "counting"},
		WithLogger(NewSlogLogger(slogt.New(t))))

	m.Send("increment")
	m.Send("nope")

	assert.Equal(t, 1, m.Context()["count"])
}

func TestNewSlogLoggerDefault(t *testing.T) {
	t.Parallel()

	l := NewSlogLogger(nil)
	require.NotNil(t, l)

	assert.NotPanics(t, func() {
		l.PublishFailed(context.Background(), "m", assert.AnError)
		l.EffectStarted(context.Background(), "m", "fx")
		l.EffectStopped(context.Background(), "m", "fx")
	})
}

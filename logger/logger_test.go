package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		entries = append(entries, entry)
	}

	return entries
}

func TestLogger(t *testing.T) { //nolint:paralleltest // mutates the default logger
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem: "test",
		JSON:      true,
		Output:    &buf,
	})

	Get().Info("default subsystem")

	ctx := WithSubsystem(t.Context(), "overridden")
	Get(ctx).Info("overridden subsystem")

	ctx = WithMachine(t.Context(), "door", "m-1")
	Get(ctx).Info("machine values")

	Get(WithMuted(ctx, true)).Info("dropped")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)

	assert.Equal(t, "test", entries[0]["subsystem"])
	assert.Equal(t, "overridden", entries[1]["subsystem"])
	assert.Equal(t, "door", entries[2]["machine"])
	assert.Equal(t, "m-1", entries[2]["machine_id"])
	assert.Equal(t, "test", entries[2]["subsystem"])
}

func TestLegacy(t *testing.T) { //nolint:paralleltest // mutates the default logger
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem:   "test",
		JSON:        true,
		LegacyLevel: slog.LevelWarn,
		Output:      &buf,
	})

	log.Printf("legacy %d", 1)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "legacy 1", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[0]["level"])
}

func TestExtraHandler(t *testing.T) { //nolint:paralleltest // mutates the default logger
	var (
		primary bytes.Buffer
		extra   bytes.Buffer
	)

	ConfigureLoggingWithOptions(Options{
		Subsystem: "test",
		JSON:      true,
		MinLevel:  slog.LevelInfo,
		Output:    &primary,
		Extra:     slog.NewJSONHandler(&extra, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})

	Get().Debug("only extra")
	Get().Info("both", "error", AnnotateError(errBase, "state", "open"))

	assert.Len(t, decodeLines(t, &primary), 1)

	entries := decodeLines(t, &extra)
	require.Len(t, entries, 2)
	assert.Equal(t, "open", entries[1]["state"])
}

func TestConfigureLogging(t *testing.T) { //nolint:paralleltest // uses t.Setenv
	t.Setenv("LOG_JSON", "true")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer

	logger, err := ConfigureLogging("typestate", WithOutput(&buf))
	require.NoError(t, err)

	logger.Info("below level")
	logger.Warn("kept")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "typestate", GetSubsystem(t.Context()))
}

func TestConfigWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output  string
		wantErr bool
	}{
		{output: ""},
		{output: "stdout"},
		{output: "STDERR"},
		{output: "/var/log/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			t.Parallel()

			w, err := Config{Output: tt.output}.Writer()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidLogOutput)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, w)
		})
	}
}

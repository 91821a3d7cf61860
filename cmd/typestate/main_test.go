package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/amp-labs/typestate/statemachine/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterConfig = "../../statemachine/testdata/counter.yaml"

const brokenConfig = `
name: broken
initial: idle
states:
  idle:
    on:
      go: {action: teleport}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "machine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "validate", counterConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = execute(t, "validate", writeConfig(t, brokenConfig))
	require.ErrorIs(t, err, validator.ErrInvalid)
	assert.Contains(t, out, "UNKNOWN_ACTION")

	_, err = execute(t, "validate", "missing.yaml")
	require.Error(t, err)

	_, err = execute(t, "validate")
	require.Error(t, err)
}

func TestGraphCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr error
	}{
		{
			name: "mermaid",
			args: []string{"graph", counterConfig},
			want: []string{"stateDiagram-v2", "[*] --> counting", "counting --> maxedOut"},
		},
		{
			name: "mermaid left to right",
			args: []string{"graph", counterConfig, "--direction", "lr", "--title", "Counter Machine"},
			want: []string{"direction LR", "title: Counter Machine"},
		},
		{
			name: "dot",
			args: []string{"graph", counterConfig, "-f", "dot", "--highlight", "maxedOut"},
			want: []string{"digraph", "rankdir=TB", "#fff9c4"},
		},
		{
			name:    "unknown format",
			args:    []string{"graph", counterConfig, "-f", "svg"},
			wantErr: errUnknownFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, tt.args...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)

			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRunScripted(t *testing.T) { //nolint:paralleltest // configures global logging and shutdown
	t.Setenv("TYPESTATE_SETTLE", "0s")

	out, err := execute(t, "run", counterConfig, "-e", "increment,increment,decrement,bogus")
	require.NoError(t, err)

	assert.Contains(t, out, "counting: increment updated the context")
	assert.Contains(t, out, "Current State: counting")
	assert.Contains(t, out, "count: 1")
}

func TestRunInitialOverride(t *testing.T) { //nolint:paralleltest // configures global logging and shutdown
	out, err := execute(t, "run", counterConfig, "--initial", "maxedOut", "-e", "reset", "--settle", "0s")
	require.NoError(t, err)

	assert.Contains(t, out, "maxedOut --reset--> counting")
	assert.Contains(t, out, "count: 0")
}

func TestRunRejectsInvalidConfig(t *testing.T) { //nolint:paralleltest // configures global logging and shutdown
	out, err := execute(t, "run", writeConfig(t, brokenConfig), "-e", "go")
	require.ErrorIs(t, err, validator.ErrInvalid)
	assert.Contains(t, out, "UNKNOWN_ACTION")
}

func TestRunUnknownPublisher(t *testing.T) { //nolint:paralleltest // uses t.Setenv
	t.Setenv("TYPESTATE_PUBLISH", "kafka")

	_, err := execute(t, "run", counterConfig, "-e", "increment")
	require.ErrorIs(t, err, errUnknownPublisher)
}

func TestRunPublishesToRedis(t *testing.T) { //nolint:paralleltest // uses t.Setenv
	mr := miniredis.RunT(t)

	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("REDIS_STREAM_PER_MACHINE", "true")

	_, err := execute(t, "run", counterConfig, "--publish", "redis", "--settle", "0s",
		"-e", "increment,increment")
	require.NoError(t, err)

	out, err := execute(t, "changes", "--machine", "counter")
	require.NoError(t, err)
	assert.Contains(t, out, "counter increment: counting -> counting (updated)")

	out, err = execute(t, "changes", "--machine", "counter", "--json", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"machine":"counter"`)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("\n")))
}

func TestEnvFile(t *testing.T) { //nolint:paralleltest // loads into the process environment
	mr := miniredis.RunT(t)

	envFile := filepath.Join(t.TempDir(), "typestate.env")
	body := "REDIS_URL=redis://" + mr.Addr() + "\nREDIS_STREAM=env:changes\n"
	require.NoError(t, os.WriteFile(envFile, []byte(body), 0o600))

	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_STREAM", "")
	require.NoError(t, os.Unsetenv("REDIS_URL"))
	require.NoError(t, os.Unsetenv("REDIS_STREAM"))

	_, err := execute(t, "--env-file", envFile, "run", counterConfig, "--publish", "redis", "--settle", "0s",
		"-e", "increment")
	require.NoError(t, err)

	entries, err := mr.Stream("env:changes")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = execute(t, "--env-file", "missing.env", "validate", counterConfig)
	require.Error(t, err)
}

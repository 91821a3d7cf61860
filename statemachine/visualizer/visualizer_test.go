package visualizer

import (
	"strings"
	"testing"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uploadYAML = `
name: file_upload
initial: idle
states:
  idle:
    on:
      pick:
        action: payload
        params: {key: file, state: uploading}
  uploading:
    requires: [file]
    entry:
      effect: dispatch
      params: {event: done}
    on:
      done: {state: complete, context: {ok: true}}
      cancel: idle
  complete: {}
`

func loadUpload(t *testing.T) *statemachine.Config {
	t.Helper()

	config, err := statemachine.LoadConfigFromBytes([]byte(uploadYAML))
	require.NoError(t, err)

	return config
}

func TestGenerateMermaid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		opts           Options
		wantContain    []string
		wantNotContain []string
	}{
		{
			name: "defaults",
			opts: DefaultOptions(),
			wantContain: []string{
				"```mermaid\n",
				"title: File Upload",
				"stateDiagram-v2",
				"direction TB",
				"[*] --> idle",
				"idle --> uploading: pick (payload)",
				"uploading: uploading\\n[entry: dispatch; requires: file]",
				"class uploading effectState",
				"uploading --> complete: done",
				"uploading --> idle: cancel",
				"class complete terminalState",
				"complete --> [*]",
				"classDef highlighted",
			},
		},
		{
			name: "bare edges left to right",
			opts: DefaultOptions().WithShowEvents(false).WithShowActions(false).WithShowHooks(false).WithDirection("LR"),
			wantContain: []string{
				"direction LR",
				"idle --> uploading\n",
				"uploading --> complete\n",
			},
			wantNotContain: []string{"pick", "entry: dispatch"},
		},
		{
			name:        "highlighted path and title",
			opts:        DefaultOptions().WithHighlightPath([]string{"idle", "uploading"}).WithTitle("Uploads"),
			wantContain: []string{"title: Uploads", "class idle highlighted", "class uploading highlighted"},
			wantNotContain: []string{"class uploading effectState"},
		},
		{
			name:        "dark theme",
			opts:        DefaultOptions().WithTheme("dark"),
			wantContain: []string{"classDef terminalState fill:#1b5e20"},
		},
		{
			name:        "unknown theme falls back",
			opts:        DefaultOptions().WithTheme("neon"),
			wantContain: []string{"classDef terminalState fill:#c8e6c9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := GenerateMermaidWithOptions(loadUpload(t), tt.opts)
			require.NoError(t, err)

			for _, want := range tt.wantContain {
				assert.Contains(t, out, want)
			}

			for _, unwanted := range tt.wantNotContain {
				assert.NotContains(t, out, unwanted)
			}
		})
	}
}

func TestGenerateMermaidStateOrder(t *testing.T) {
	t.Parallel()

	config, err := statemachine.LoadConfigFromBytes([]byte(`
name: steps
initial: step1
states:
  step10: {}
  step2:
    on: {next: step10}
  step1:
    on: {next: step2}
`))
	require.NoError(t, err)

	out, err := GenerateMermaid(config)
	require.NoError(t, err)

	first := strings.Index(out, "step1 --> step2")
	second := strings.Index(out, "step2 --> step10")
	last := strings.Index(out, "step10 --> [*]")

	require.NotEqual(t, -1, first)
	assert.Less(t, first, second)
	assert.Less(t, second, last)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	_, err := GenerateMermaid(nil)
	require.ErrorIs(t, err, ErrConfigNil)

	_, err = GenerateDOT(&statemachine.Config{Name: "x"})
	require.ErrorIs(t, err, ErrNoInitialState)

	_, err = GenerateMermaidFromFile("testdata/missing.yaml")
	require.Error(t, err)
}

func TestGenerateMermaidFromFile(t *testing.T) {
	t.Parallel()

	out, err := GenerateMermaidFromFile("../testdata/counter.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "counting --> maxedOut: increment (increment)")
	assert.Contains(t, out, "maxedOut --> counting: reset")
	assert.Contains(t, out, "counting: counting\\n[requires: count]")
}

func TestGenerateDOT(t *testing.T) {
	t.Parallel()

	out, err := GenerateDOT(loadUpload(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `digraph "file_upload" {`))
	assert.Contains(t, out, `label="File Upload";`)
	assert.Contains(t, out, "rankdir=TB;")
	assert.Contains(t, out, `__start -> "idle";`)
	assert.Contains(t, out, `"idle" -> "uploading" [label="pick (payload)"];`)
	assert.Contains(t, out, `"uploading" [label="uploading\n[entry: dispatch; requires: file]"];`)
	assert.Contains(t, out, `"complete" [peripheries=2];`)
	assert.True(t, strings.HasSuffix(out, "}\n"))

	out, err = GenerateDOTWithOptions(loadUpload(t),
		DefaultOptions().WithDirection("LR").WithShowEvents(false).WithShowActions(false).WithHighlightPath([]string{"idle"}))
	require.NoError(t, err)

	assert.Contains(t, out, "rankdir=LR;")
	assert.Contains(t, out, `"idle" [style="rounded,filled", fillcolor="#fff9c4"];`)
	assert.Contains(t, out, `"uploading" -> "complete";`)
}

package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigEdges(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("testdata/counter.yaml")
	require.NoError(t, err)

	assert.Equal(t, []Edge{
		{From: "counting", Event: "increment", To: "maxedOut", Action: "increment"},
		{From: "maxedOut", Event: "reset", To: "counting"},
	}, cfg.Edges())
}

func TestConfigEdgesFromParams(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromBytes([]byte(`
name: form
initial: editing
states:
  editing:
    on:
      submit:
        action: when
        params: {key: valid, then: sending, otherwise: {state: editing, context: {tries: 1}}}
      type:
        action: payload
        params: {key: text}
      clear: {text: ""}
      custom:
        action: mine
        params: {state: elsewhere}
  sending:
    on:
      done: editing
`))
	require.NoError(t, err)

	assert.Equal(t, []Edge{
		{From: "editing", Event: "submit", To: "sending", Action: "when"},
		{From: "editing", Event: "submit", To: "editing", Action: "when"},
		{From: "sending", Event: "done", To: "editing"},
	}, cfg.Edges())
}

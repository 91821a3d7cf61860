package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/amp-labs/typestate/statemachine"
)

// Tracer tracks effect execution for debugging.
type Tracer struct {
	mu     sync.Mutex
	now    func() time.Time
	traces []Trace
}

// Trace represents one run of a traced effect.
type Trace struct {
	Effect  string
	Started time.Time
	Stopped time.Time // zero while the effect is live
}

// Live reports whether the effect has not been stopped yet.
func (t Trace) Live() bool {
	return t.Stopped.IsZero()
}

// NewTracer creates a new effect tracer.
func NewTracer() *Tracer {
	return &Tracer{now: time.Now}
}

// Wrap returns an effect that records when effect starts and when it is stopped.
func (t *Tracer) Wrap(name string, effect statemachine.Effect) statemachine.Effect {
	return func(ctx context.Context, d *statemachine.Dispatcher) statemachine.Cleanup {
		t.mu.Lock()
		idx := len(t.traces)
		t.traces = append(t.traces, Trace{Effect: name, Started: t.now()})
		t.mu.Unlock()

		var cleanup statemachine.Cleanup
		if effect != nil {
			cleanup = effect(ctx, d)
		}

		return func() {
			if cleanup != nil {
				cleanup()
			}

			t.mu.Lock()
			t.traces[idx].Stopped = t.now()
			t.mu.Unlock()
		}
	}
}

// Traces returns a copy of all traces in start order.
func (t *Tracer) Traces() []Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.traces)
}

// Live returns the names of the traced effects that are still running.
func (t *Tracer) Live() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var live []string

	for _, trace := range t.traces {
		if trace.Live() {
			live = append(live, trace.Effect)
		}
	}

	return live
}

func (t *Tracer) String() string {
	var builder strings.Builder

	builder.WriteString("=== Effect Traces ===\n")

	for i, trace := range t.Traces() {
		if trace.Live() {
			fmt.Fprintf(&builder, "[%d] %s (live)\n", i, trace.Effect)

			continue
		}

		fmt.Fprintf(&builder, "[%d] %s (%s)\n", i, trace.Effect, trace.Stopped.Sub(trace.Started))
	}

	builder.WriteString("=====================\n")

	return builder.String()
}

// DumpView dumps a view for debugging. Context keys are sorted.
func DumpView(v statemachine.View) string {
	var builder strings.Builder

	builder.WriteString("=== View ===\n")
	fmt.Fprintf(&builder, "Current State: %s\n", v.Current)
	builder.WriteString("\nContext:\n")

	for _, key := range slices.Sorted(maps.Keys(v.Context)) {
		fmt.Fprintf(&builder, "  %s: %s\n", key, formatValue(v.Context[key]))
	}

	if v.Dispatcher != nil {
		fmt.Fprintf(&builder, "\nEvents: %s\n", strings.Join(v.Events(), ", "))
	}

	builder.WriteString("============\n")

	return builder.String()
}

func formatValue(val any) string {
	switch val.(type) {
	case string, bool, int, int64, float64, nil:
		return fmt.Sprintf("%v", val)
	}

	jsonBytes, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprintf("%v", val)
	}

	return string(jsonBytes)
}

// CompareViews shows the differences between two views.
func CompareViews(before, after statemachine.View) string {
	var builder strings.Builder

	builder.WriteString("=== View Diff ===\n")

	if before.Current != after.Current {
		fmt.Fprintf(&builder, "State: %s -> %s\n", before.Current, after.Current)
	}

	for _, key := range slices.Sorted(maps.Keys(after.Context)) {
		afterVal := after.Context[key]

		beforeVal, existed := before.Context[key]
		switch {
		case !existed:
			fmt.Fprintf(&builder, "  + %s: %s\n", key, formatValue(afterVal))
		case formatValue(beforeVal) != formatValue(afterVal):
			fmt.Fprintf(&builder, "  ~ %s: %s -> %s\n", key, formatValue(beforeVal), formatValue(afterVal))
		}
	}

	for _, key := range slices.Sorted(maps.Keys(before.Context)) {
		if _, exists := after.Context[key]; !exists {
			fmt.Fprintf(&builder, "  - %s\n", key)
		}
	}

	builder.WriteString("=================\n")

	return builder.String()
}

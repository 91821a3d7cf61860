package statemachine

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeebo/xxh3"
)

// Metric definitions with appropriate labels.
var (
	// eventsTotal tracks dispatched events by machine, state, event and outcome.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_events_total",
		Help: "Total number of dispatched events by machine, state, event, and outcome",
	}, []string{"machine", "state", "event", "outcome"})

	// transitionsTotal tracks committed state changes.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of state transitions by machine, from_state, and to_state",
	}, []string{"machine", "from_state", "to_state"})

	// dispatchDuration tracks the time spent reducing one event.
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_dispatch_duration_seconds",
		Help:    "Duration of event reduction by machine and outcome",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"machine", "outcome"})

	// effectsStartedTotal tracks effect bodies that ran.
	effectsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_effects_started_total",
		Help: "Total number of effects started by machine and kind",
	}, []string{"machine", "kind"})

	// effectsStoppedTotal tracks effects whose cleanup ran.
	effectsStoppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_effects_stopped_total",
		Help: "Total number of effects stopped by machine and kind",
	}, []string{"machine", "kind"})

	// runningEffects tracks effects that started and are not stopped yet.
	runningEffects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_running_effects",
		Help: "Number of effects currently running by machine",
	}, []string{"machine"})

	// instancesActive tracks machine instances that have not been torn down.
	instancesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_instances",
		Help: "Number of live machine instances by machine and schema fingerprint",
	}, []string{"machine", "schema"})
)

// Effect kinds used as metric labels.
const (
	kindEffect = "effect"
	kindEntry  = "entry"
	kindExit   = "exit"
)

func sanitizeMachine(name string) string {
	if name == "" {
		return "unnamed"
	}

	return name
}

func sanitizeEvent(event string) string {
	if event == "" {
		return "none"
	}

	return event
}

// fingerprint hashes the shape of a schema (states and the events each
// accepts) into a short, stable label value.
func fingerprint(schema *Schema) string {
	var sb strings.Builder

	for _, name := range schema.StateNames() {
		sb.WriteString(name)
		sb.WriteByte('{')

		events := make([]string, 0, len(schema.States[name].On))
		for event := range schema.States[name].On {
			events = append(events, event)
		}

		sortNatural(events)
		sb.WriteString(strings.Join(events, ","))
		sb.WriteByte('}')
	}

	return fmt.Sprintf("%016x", xxh3.HashString(sb.String()))[:8]
}

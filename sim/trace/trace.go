package trace

import "github.com/inference-sim/swizzle-sim/sim"

// TraceLevel controls the verbosity of access tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps captures one record per micro-step.
	TraceLevelSteps TraceLevel = "steps"
	// TraceLevelAccesses captures every access in addition to step records.
	TraceLevelAccesses TraceLevel = "accesses"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelSteps:    true,
	TraceLevelAccesses: true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects records during a simulation run.
type SimulationTrace struct {
	Config   TraceConfig
	Accesses []AccessRecord
	Steps    []StepRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:   config,
		Accesses: make([]AccessRecord, 0),
		Steps:    make([]StepRecord, 0),
	}
}

// RecordAccess appends an access record.
func (st *SimulationTrace) RecordAccess(record AccessRecord) {
	st.Accesses = append(st.Accesses, record)
}

// RecordStep appends a step record.
func (st *SimulationTrace) RecordStep(record StepRecord) {
	st.Steps = append(st.Steps, record)
}

// Observer feeds simulator events into a SimulationTrace according to its level.
type Observer struct {
	Trace *SimulationTrace
}

// NewObserver returns an observer recording into st.
func NewObserver(st *SimulationTrace) *Observer {
	return &Observer{Trace: st}
}

// ObserveAccess implements sim.Observer.
func (o *Observer) ObserveAccess(ev sim.AccessEvent) {
	if o.Trace.Config.Level != TraceLevelAccesses {
		return
	}
	rec := AccessRecord{
		MicroStep:  ev.MicroStep,
		BatchIndex: ev.BatchIndex,
		KIndex:     ev.KIndex,
		Order:      ev.Order,
		CTA:        ev.Request.CTA,
		Tile:       ev.Request.Tile.String(),
		Origin:     string(ev.Request.Origin()),
		Hit:        ev.Result.Hit,
	}
	if ev.Result.Evicted != nil {
		rec.Evicted = ev.Result.Evicted.String()
	}
	o.Trace.RecordAccess(rec)
}

// ObserveStep implements sim.Observer.
func (o *Observer) ObserveStep(ev sim.StepEvent) {
	switch o.Trace.Config.Level {
	case TraceLevelSteps, TraceLevelAccesses:
	default:
		return
	}
	o.Trace.RecordStep(StepRecord{
		MicroStep:  ev.MicroStep,
		BatchIndex: ev.BatchIndex,
		KIndex:     ev.KIndex,
		Requests:   ev.Requests,
		Hits:       ev.Step.Hits,
		Misses:     ev.Step.Misses,
		CacheLen:   ev.CacheLen,
	})
}

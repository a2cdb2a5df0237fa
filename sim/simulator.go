// sim/simulator.go
package sim

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Status is the lifecycle phase of a simulation.
type Status string

const (
	StatusIdle     Status = "idle"     // microStep == 0
	StatusRunning  Status = "running"  // 0 < microStep < total
	StatusFinished Status = "finished" // microStep == total
)

// State is the complete mutable part of a simulation. A State returned by
// Advance or Reset is never modified afterwards; Advance works on a clone.
type State struct {
	MicroStep int
	Cache     *LRUCache
	Counters  Counters
}

// NewState returns the Idle state for a cache of the given capacity.
func NewState(capacity int) State {
	return State{Cache: NewLRUCache(capacity)}
}

// StatusFor classifies the state against the plan's step count.
func (st State) StatusFor(totalMicroSteps int) Status {
	switch {
	case st.MicroStep >= totalMicroSteps:
		return StatusFinished
	case st.MicroStep == 0:
		return StatusIdle
	default:
		return StatusRunning
	}
}

// Reset returns the Idle state for plan, whatever st was.
func Reset(plan *Plan) State {
	return NewState(plan.Config.CacheCapacity)
}

// Advance executes one micro-step and returns the resulting state.
// The input state is left untouched. Advancing a finished state returns it as is.
//
// The active batch is microStep / K and the reduction index microStep % K.
// Every pooled request is applied to the cache one at a time in shuffled order.
func Advance(plan *Plan, st State, shuffler Shuffler, obs Observer) State {
	if st.MicroStep >= plan.TotalMicroSteps {
		return st
	}

	batchIndex, kIndex := plan.Locate(st.MicroStep)
	batch := plan.Batches[batchIndex]
	requests := StepRequests(batch, kIndex, shuffler)

	next := State{
		MicroStep: st.MicroStep,
		Cache:     st.Cache.Clone(),
		Counters:  st.Counters,
	}
	var step Counters
	for i, req := range requests {
		res := next.Cache.Access(req.Tile)
		step.Record(req.Origin(), res.Hit)
		if obs != nil {
			obs.ObserveAccess(AccessEvent{
				MicroStep:  st.MicroStep,
				BatchIndex: batchIndex,
				KIndex:     kIndex,
				Order:      i,
				Request:    req,
				Result:     res,
			})
		}
	}
	next.Counters = next.Counters.Add(step)
	next.MicroStep++

	logrus.Debugf("[step %05d] batch=%d k=%d requests=%d hits=%d misses=%d cache=%d/%d",
		st.MicroStep, batchIndex, kIndex, len(requests), step.Hits, step.Misses,
		next.Cache.Len(), next.Cache.Capacity())

	if obs != nil {
		obs.ObserveStep(StepEvent{
			MicroStep:  st.MicroStep,
			BatchIndex: batchIndex,
			KIndex:     kIndex,
			Requests:   len(requests),
			Step:       step,
			Cumulative: next.Counters,
			CacheLen:   next.Cache.Len(),
		})
	}
	return next
}

// Simulator holds the single writable reference to the simulation state and
// owns its lifecycle. Manual stepping, playback and the HTTP monitor all go
// through Advance, so every caller observes identical semantics.
//
// The mutex makes each Advance atomic with respect to Snapshot and Reconfigure.
type Simulator struct {
	mu sync.Mutex

	memo  ScheduleMemo
	plan  *Plan
	state State

	key            SimulationKey
	rng            *PartitionedRNG
	shuffler       Shuffler
	customShuffler bool
	observers      observers
}

// NewSimulator validates cfg and returns an Idle simulator. The key seeds the
// request-order shuffle; pass UnseededKey() for the reference behavior.
func NewSimulator(cfg Config, key SimulationKey) (*Simulator, error) {
	s := &Simulator{key: key}
	plan, err := newPlanWithMemo(cfg, &s.memo)
	if err != nil {
		return nil, err
	}
	s.plan = plan
	s.resetLocked()
	logrus.Infof("Simulator ready: mode=%s M=%d N=%d K=%d group=%d ctas=%d capacity=%d steps=%d seed=%d",
		cfg.Mode, cfg.M, cfg.N, cfg.K, cfg.GroupSizeM, cfg.NumCTAs, cfg.CacheCapacity, plan.TotalMicroSteps, key)
	return s, nil
}

// SetShuffler replaces the seeded shuffle with a caller-provided one.
// Passing nil restores the seeded shuffle.
func (s *Simulator) SetShuffler(shuffler Shuffler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customShuffler = shuffler != nil
	if s.customShuffler {
		s.shuffler = shuffler
	} else {
		s.reseedLocked()
	}
}

// AddObserver registers an observer for subsequent steps.
func (s *Simulator) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Simulator) reseedLocked() {
	s.rng = NewPartitionedRNG(s.key)
	if !s.customShuffler {
		s.shuffler = s.rng.ForSubsystem(SubsystemAccessOrder)
	}
}

func (s *Simulator) resetLocked() {
	s.state = Reset(s.plan)
	s.reseedLocked()
}

// Advance executes one micro-step. It is a no-op once Finished.
// Returns the status after the step.
func (s *Simulator) Advance() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var obs Observer
	if len(s.observers) > 0 {
		obs = s.observers
	}
	s.state = Advance(s.plan, s.state, s.shuffler, obs)
	return s.state.StatusFor(s.plan.TotalMicroSteps)
}

// RunToCompletion advances until Finished and returns the final state.
func (s *Simulator) RunToCompletion() State {
	for s.Advance() != StatusFinished {
	}
	return s.State()
}

// Reset returns to Idle: step 0, empty cache, zero counters. The shuffle is
// reseeded so a seeded run replays identically.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	logrus.Debugf("Simulator reset")
}

// Reconfigure applies a new configuration and resets. An invalid cfg is
// rejected and the current configuration and state are kept.
func (s *Simulator) Reconfigure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, err := newPlanWithMemo(cfg, &s.memo)
	if err != nil {
		logrus.Warnf("Rejected configuration: %v", err)
		return err
	}
	s.plan = plan
	s.resetLocked()
	logrus.Infof("Reconfigured: mode=%s M=%d N=%d K=%d group=%d ctas=%d capacity=%d steps=%d",
		cfg.Mode, cfg.M, cfg.N, cfg.K, cfg.GroupSizeM, cfg.NumCTAs, cfg.CacheCapacity, plan.TotalMicroSteps)
	return nil
}

// Config returns the active configuration.
func (s *Simulator) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Config
}

// Plan returns the active plan. Plans are immutable.
func (s *Simulator) Plan() *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Key returns the seed of the request-order shuffle.
func (s *Simulator) Key() SimulationKey {
	return s.key
}

// State returns the current state. The returned value must be treated as read-only.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current lifecycle phase.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.StatusFor(s.plan.TotalMicroSteps)
}

// Metrics returns the report for the current state.
func (s *Simulator) Metrics() MetricsOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewMetricsOutput(s.plan.Config, s.key, s.state, s.plan.TotalMicroSteps)
}

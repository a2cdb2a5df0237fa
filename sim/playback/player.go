// Package playback drives a Simulator on a timer.
//
// The player only ever calls Simulator.Advance, so timed playback and manual
// stepping share one code path.
package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/swizzle-sim/sim"
)

const (
	// BaseInterval is the delay between steps at speed 1.
	BaseInterval = 500 * time.Millisecond
	// MinDelay bounds the delay from below at high speeds.
	MinDelay = 10 * time.Millisecond
)

// Interval returns the delay between steps for speed: max(MinDelay, BaseInterval/speed).
// Delays too long for a time.Duration saturate at the largest one.
func Interval(speed float64) time.Duration {
	d := float64(BaseInterval) / speed
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return max(MinDelay, time.Duration(d))
}

// Player advances a simulator once per interval while playing.
// Pausing prevents future ticks; an in-flight Advance completes first.
type Player struct {
	sim *sim.Simulator

	// stepMu orders a tick's playing check and its Advance against Play,
	// Pause, Reset and Reconfigure. Lock order: stepMu, then mu.
	stepMu sync.Mutex

	mu      sync.Mutex
	speed   float64
	playing bool
	wake    chan struct{}
	onStep  func(sim.Status)
}

// NewPlayer returns a paused player for s. speed must be positive.
func NewPlayer(s *sim.Simulator, speed float64) (*Player, error) {
	if err := validateSpeed(speed); err != nil {
		return nil, err
	}
	return &Player{
		sim:   s,
		speed: speed,
		wake:  make(chan struct{}, 1),
	}, nil
}

func validateSpeed(speed float64) error {
	if !(speed > 0) {
		return fmt.Errorf("%w: speed must be positive, got %v", sim.ErrInvalidConfig, speed)
	}
	return nil
}

// OnStep registers a callback invoked after every timed step with the
// resulting status. It runs on the player goroutine.
func (p *Player) OnStep(fn func(sim.Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStep = fn
}

// Simulator returns the driven simulator.
func (p *Player) Simulator() *sim.Simulator {
	return p.sim
}

// Speed returns the current speed multiplier.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetSpeed changes the speed; the new interval applies from the next tick.
func (p *Player) SetSpeed(speed float64) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
	p.signal()
	return nil
}

// Playing reports whether the player is ticking.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Play starts ticking. A finished simulation stays paused; Play returns false then.
func (p *Player) Play() bool {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()
	if p.sim.Status() == sim.StatusFinished {
		return false
	}
	p.setPlaying(true)
	return true
}

// Pause stops future ticks. It returns after any in-flight step has landed.
func (p *Player) Pause() {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()
	p.setPlaying(false)
}

// Reset pauses and returns the simulator to Idle. No timed step lands after
// Reset returns until Play is called again.
func (p *Player) Reset() {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()
	p.setPlaying(false)
	p.sim.Reset()
}

// Reconfigure pauses and applies cfg. On error nothing changes except the pause.
func (p *Player) Reconfigure(cfg sim.Config) error {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()
	p.setPlaying(false)
	return p.sim.Reconfigure(cfg)
}

func (p *Player) setPlaying(playing bool) {
	p.mu.Lock()
	changed := p.playing != playing
	p.playing = playing
	p.mu.Unlock()
	if changed {
		logrus.Debugf("playback playing=%v", playing)
		p.signal()
	}
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drives the simulator until ctx is cancelled. Reaching Finished pauses
// the player; Run keeps waiting for Play, Reset or cancellation.
func (p *Player) Run(ctx context.Context) error {
	for {
		p.mu.Lock()
		playing, interval := p.playing, Interval(p.speed)
		p.mu.Unlock()

		if !playing {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}
		p.tick()
	}
}

func (p *Player) tick() {
	p.stepMu.Lock()
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		p.stepMu.Unlock()
		return
	}
	onStep := p.onStep
	p.mu.Unlock()

	status := p.sim.Advance()
	if status == sim.StatusFinished {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		logrus.Infof("Playback finished at step %d", p.sim.State().MicroStep)
	}
	p.stepMu.Unlock()

	// Outside stepMu so the callback may call Pause or Reset.
	if onStep != nil {
		onStep(status)
	}
}

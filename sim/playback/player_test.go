package playback

import (
	"context"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/swizzle-sim/sim"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func tinySimulator(t *testing.T) *sim.Simulator {
	t.Helper()
	cfg := sim.Config{M: 2, N: 2, K: 1, BlockSizeM: 1, BlockSizeN: 1, Mode: sim.ModeRowMajor, GroupSizeM: 2, NumCTAs: 1, CacheCapacity: 2}
	s, err := sim.NewSimulator(cfg, sim.NewSimulationKey(3))
	require.NoError(t, err)
	return s
}

func startPlayer(t *testing.T, p *Player) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()
	t.Cleanup(cancelFn)
	return cancelFn, errCh
}

func TestInterval(t *testing.T) {
	tests := []struct {
		speed float64
		want  time.Duration
	}{
		{1, 500 * time.Millisecond},
		{10, 50 * time.Millisecond},
		{20, 25 * time.Millisecond},
		{50, 10 * time.Millisecond},
		{1000, 10 * time.Millisecond}, // clamped to MinDelay
		{0.5, time.Second},
		{1e-20, time.Duration(math.MaxInt64)}, // saturates instead of wrapping
		{1e-300, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interval(tt.speed), "speed %v", tt.speed)
	}
}

func TestInterval_SlowerSpeedNeverShortensDelay(t *testing.T) {
	prev := Interval(1)
	for speed := 0.1; speed > 1e-30; speed /= 10 {
		got := Interval(speed)
		assert.GreaterOrEqual(t, got, prev, "speed %v", speed)
		prev = got
	}
}

func TestNewPlayer_NonPositiveSpeed_Rejected(t *testing.T) {
	s := tinySimulator(t)
	for _, speed := range []float64{0, -1, math.NaN()} {
		p, err := NewPlayer(s, speed)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, sim.ErrInvalidConfig, "speed %v", speed)
	}
}

func TestPlayer_SetSpeed(t *testing.T) {
	p, err := NewPlayer(tinySimulator(t), sim.DefaultSpeed)
	require.NoError(t, err)

	assert.Error(t, p.SetSpeed(0))
	assert.Equal(t, sim.DefaultSpeed, p.Speed())

	require.NoError(t, p.SetSpeed(4))
	assert.Equal(t, 4.0, p.Speed())
}

func TestPlayer_RunsToFinishedAndAutoPauses(t *testing.T) {
	// GIVEN a four-step simulation played at maximum rate
	s := tinySimulator(t)
	p, err := NewPlayer(s, 1000)
	require.NoError(t, err)
	steps := make(chan sim.Status, 16)
	p.OnStep(func(st sim.Status) { steps <- st })
	startPlayer(t, p)

	// WHEN played
	require.True(t, p.Play())

	// THEN it reaches Finished and stops playing on its own
	require.Eventually(t, func() bool {
		return s.Status() == sim.StatusFinished && !p.Playing()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, s.State().MicroStep)

	// AND exactly four timed steps ran, the last reporting Finished
	got := make([]sim.Status, 0, 4)
	for len(got) < 4 {
		got = append(got, <-steps)
	}
	assert.Equal(t, []sim.Status{sim.StatusRunning, sim.StatusRunning, sim.StatusRunning, sim.StatusFinished}, got)
	assert.Empty(t, steps)
}

func TestPlayer_PlayWhenFinished_StaysPaused(t *testing.T) {
	s := tinySimulator(t)
	s.RunToCompletion()
	p, err := NewPlayer(s, 10)
	require.NoError(t, err)

	assert.False(t, p.Play())
	assert.False(t, p.Playing())
}

func TestPlayer_PauseStopsFutureTicks(t *testing.T) {
	// GIVEN a slow player
	s := tinySimulator(t)
	p, err := NewPlayer(s, 2) // 250ms per step
	require.NoError(t, err)
	startPlayer(t, p)

	// WHEN paused before the first tick fires
	p.Play()
	p.Pause()
	time.Sleep(350 * time.Millisecond)

	// THEN nothing advanced
	assert.False(t, p.Playing())
	assert.Equal(t, 0, s.State().MicroStep)
}

func TestPlayer_ResetPausesAndReturnsToIdle(t *testing.T) {
	s := tinySimulator(t)
	s.Advance()
	p, err := NewPlayer(s, 2)
	require.NoError(t, err)
	p.Play()

	p.Reset()

	assert.False(t, p.Playing())
	assert.Equal(t, sim.StatusIdle, s.Status())
}

func TestPlayer_ReconfigureInvalid_KeepsStateButPauses(t *testing.T) {
	s := tinySimulator(t)
	s.Advance()
	p, err := NewPlayer(s, 2)
	require.NoError(t, err)
	p.Play()

	bad := s.Config()
	bad.GroupSizeM = 5
	err = p.Reconfigure(bad)

	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
	assert.False(t, p.Playing())
	assert.Equal(t, 1, s.State().MicroStep)
}

func TestPlayer_Run_ReturnsOnCancel(t *testing.T) {
	p, err := NewPlayer(tinySimulator(t), 1)
	require.NoError(t, err)
	cancel, done := startPlayer(t, p)
	p.Play()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingObserver parks the first step inside Advance until released.
type blockingObserver struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (o *blockingObserver) ObserveAccess(sim.AccessEvent) {}

func (o *blockingObserver) ObserveStep(sim.StepEvent) {
	o.once.Do(func() {
		close(o.entered)
		<-o.release
	})
}

func TestPlayer_ResetDuringInFlightStep_LeavesIdle(t *testing.T) {
	// GIVEN a timed step that is in the middle of Advance
	s := tinySimulator(t)
	obs := &blockingObserver{entered: make(chan struct{}), release: make(chan struct{})}
	s.AddObserver(obs)
	p, err := NewPlayer(s, 10)
	require.NoError(t, err)
	require.True(t, p.Play())
	ticked := make(chan struct{})
	go func() {
		p.tick()
		close(ticked)
	}()
	<-obs.entered

	// WHEN Reset is requested concurrently
	reset := make(chan struct{})
	go func() {
		p.Reset()
		close(reset)
	}()

	// THEN Reset waits for the step to land
	select {
	case <-reset:
		t.Fatal("Reset returned while a step was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(obs.release)
	select {
	case <-reset:
	case <-time.After(2 * time.Second):
		t.Fatal("Reset did not return after the step landed")
	}
	<-ticked

	// AND the simulator stays Idle and paused afterwards
	p.tick()
	assert.False(t, p.Playing())
	assert.Equal(t, 0, s.State().MicroStep)
	assert.Equal(t, sim.StatusIdle, s.Status())
}

func TestPlayer_PauseDuringInFlightStep_NoLaterStep(t *testing.T) {
	s := tinySimulator(t)
	obs := &blockingObserver{entered: make(chan struct{}), release: make(chan struct{})}
	s.AddObserver(obs)
	p, err := NewPlayer(s, 10)
	require.NoError(t, err)
	require.True(t, p.Play())
	go p.tick()
	<-obs.entered

	paused := make(chan struct{})
	go func() {
		p.Pause()
		close(paused)
	}()
	close(obs.release)
	<-paused

	// The in-flight step landed; nothing follows it.
	p.tick()
	assert.Equal(t, 1, s.State().MicroStep)
	assert.False(t, p.Playing())
}

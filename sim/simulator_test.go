package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(mode Mode) Config {
	return Config{
		M: 2, N: 2, K: 1,
		BlockSizeM: 1, BlockSizeN: 1,
		Mode: mode, GroupSizeM: 2,
		NumCTAs: 1, CacheCapacity: 2,
	}
}

func newTestSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	s, err := NewSimulator(cfg, NewSimulationKey(42))
	require.NoError(t, err)
	return s
}

// recordingObserver keeps every event for assertions.
type recordingObserver struct {
	accesses []AccessEvent
	steps    []StepEvent
}

func (r *recordingObserver) ObserveAccess(ev AccessEvent) { r.accesses = append(r.accesses, ev) }
func (r *recordingObserver) ObserveStep(ev StepEvent)     { r.steps = append(r.steps, ev) }

func TestSimulator_ScenarioA_TotalMicroSteps(t *testing.T) {
	// GIVEN M=N=K=8, grouped with group size 3, one CTA, capacity 42
	cfg := Config{M: 8, N: 8, K: 8, BlockSizeM: 1, BlockSizeN: 1, Mode: ModeGrouped, GroupSizeM: 3, NumCTAs: 1, CacheCapacity: 42}
	s := newTestSimulator(t, cfg)

	// THEN the schedule has 64 tiles and the run 512 micro-steps
	plan := s.Plan()
	assert.Len(t, plan.Schedule, 64)
	assert.Equal(t, TileCoord{M: 0, N: 1, PID: 3}, plan.Schedule[3])
	assert.Equal(t, 512, plan.TotalMicroSteps)

	// AND running to completion issues 2 requests per micro-step
	final := s.RunToCompletion()
	assert.Equal(t, 512, final.MicroStep)
	assert.Equal(t, 2*512, final.Counters.Total())
	assert.Equal(t, StatusFinished, s.Status())
}

func TestSimulator_IdentityOrder_ExactRowMajorSequence(t *testing.T) {
	// GIVEN a 2x2 row-major run with capacity 2 and no shuffling
	s := newTestSimulator(t, smallConfig(ModeRowMajor))
	s.SetShuffler(IdentityShuffler)
	obs := &recordingObserver{}
	s.AddObserver(obs)

	// WHEN run to completion
	final := s.RunToCompletion()

	// THEN the hit/miss sequence is exactly determined
	wantHits := []bool{false, false, true, false, false, false, true, false}
	require.Len(t, obs.accesses, len(wantHits))
	for i, ev := range obs.accesses {
		assert.Equal(t, wantHits[i], ev.Result.Hit, "access %d (%s)", i, ev.Request.Tile)
	}
	assert.Equal(t, Counters{Hits: 2, Misses: 6, HitsA: 2, MissesA: 2, HitsB: 0, MissesB: 4}, final.Counters)
	assert.Equal(t, []TileID{ATile(1, 0), BTile(0, 1)}, final.Cache.Contents())
}

func TestSimulator_IdentityOrder_ExactGroupedSequence(t *testing.T) {
	// GIVEN the same problem in grouped order: (0,0) (1,0) (0,1) (1,1)
	s := newTestSimulator(t, smallConfig(ModeGrouped))
	s.SetShuffler(IdentityShuffler)

	// WHEN run to completion
	final := s.RunToCompletion()

	// THEN the B-tile of each column is reused once instead
	assert.Equal(t, Counters{Hits: 2, Misses: 6, HitsA: 0, MissesA: 4, HitsB: 2, MissesB: 2}, final.Counters)
	assert.Equal(t, []TileID{ATile(1, 0), BTile(0, 1)}, final.Cache.Contents())
}

func TestSimulator_Lifecycle_IdleRunningFinished(t *testing.T) {
	s := newTestSimulator(t, smallConfig(ModeRowMajor))
	assert.Equal(t, StatusIdle, s.Status())

	assert.Equal(t, StatusRunning, s.Advance())
	assert.Equal(t, 1, s.State().MicroStep)

	s.Advance()
	s.Advance()
	assert.Equal(t, StatusFinished, s.Advance())
	assert.Equal(t, 4, s.State().MicroStep)
}

func TestSimulator_AdvanceWhenFinished_IsNoOp(t *testing.T) {
	// GIVEN a finished simulation
	s := newTestSimulator(t, smallConfig(ModeRowMajor))
	before := s.RunToCompletion()

	// WHEN advanced again
	status := s.Advance()

	// THEN nothing changes
	after := s.State()
	assert.Equal(t, StatusFinished, status)
	assert.Equal(t, before.MicroStep, after.MicroStep)
	assert.Equal(t, before.Counters, after.Counters)
	assert.Equal(t, before.Cache.Contents(), after.Cache.Contents())
}

func TestSimulator_RequestConservation_PerStep(t *testing.T) {
	// GIVEN 3x3 tiles on 4 CTAs so the last batch is partial
	cfg := Config{M: 3, N: 3, K: 2, BlockSizeM: 1, BlockSizeN: 1, Mode: ModeGrouped, GroupSizeM: 2, NumCTAs: 4, CacheCapacity: 5}
	s := newTestSimulator(t, cfg)
	obs := &recordingObserver{}
	s.AddObserver(obs)

	// WHEN run to completion
	final := s.RunToCompletion()

	// THEN each step issues 2 requests per active CTA
	plan := s.Plan()
	require.Len(t, obs.steps, plan.TotalMicroSteps)
	issued := 0
	for _, ev := range obs.steps {
		batch := plan.Batches[ev.BatchIndex]
		assert.Equal(t, 2*len(batch.Tiles), ev.Requests)
		assert.Equal(t, ev.Requests, ev.Step.Total())
		issued += ev.Requests
	}
	// AND cumulative hits+misses equals total requests issued
	assert.Equal(t, issued, final.Counters.Total())
	assert.Equal(t, 2*9*2, issued)
	assert.Equal(t, final.Counters.HitsA+final.Counters.HitsB, final.Counters.Hits)
	assert.Equal(t, final.Counters.MissesA+final.Counters.MissesB, final.Counters.Misses)
}

func TestSimulator_LargeCapacity_MissesOncePerDistinctTile(t *testing.T) {
	// GIVEN a cache large enough to hold every input tile
	cfg := Config{M: 6, N: 5, K: 4, BlockSizeM: 1, BlockSizeN: 1, Mode: ModeGrouped, GroupSizeM: 4, NumCTAs: 3, CacheCapacity: 6*4 + 4*5}
	s := newTestSimulator(t, cfg)

	// WHEN run to completion with the random shuffle
	final := s.RunToCompletion()

	// THEN every distinct tile misses exactly once
	assert.Equal(t, 6*4, final.Counters.MissesA)
	assert.Equal(t, 4*5, final.Counters.MissesB)
	assert.Equal(t, 2*6*5*4-(6*4+4*5), final.Counters.Hits)
}

func TestSimulator_HugeCapacity_DefaultGrid(t *testing.T) {
	// GIVEN the default grid with a capacity far above its 96 distinct tiles
	cfg := DefaultConfig()
	cfg.CacheCapacity = 1 << 20
	s := newTestSimulator(t, cfg)

	// WHEN run to completion
	final := s.RunToCompletion()

	// THEN only compulsory misses occur and the cache holds every tile once
	assert.Equal(t, 8*6+6*8, final.Counters.Misses)
	assert.Equal(t, 2*8*8*6-(8*6+6*8), final.Counters.Hits)
	assert.Equal(t, 8*6+6*8, final.Cache.Len())
	assert.Equal(t, 1<<20, final.Cache.Capacity())
}

func TestSimulator_CapacityOne_MultiK_AlwaysMisses(t *testing.T) {
	// GIVEN capacity 1, one CTA and K >= 2, consecutive accesses are never equal
	cfg := Config{M: 4, N: 4, K: 3, BlockSizeM: 1, BlockSizeN: 1, Mode: ModeRowMajor, GroupSizeM: 2, NumCTAs: 1, CacheCapacity: 1}
	s := newTestSimulator(t, cfg)

	final := s.RunToCompletion()

	assert.Equal(t, 0, final.Counters.Hits)
	assert.Equal(t, 2*4*4*3, final.Counters.Misses)
	assert.Equal(t, 1, final.Cache.Len())
}

func TestSimulator_GroupedBeatsRowMajor_WhenWorkingSetExceedsCache(t *testing.T) {
	// GIVEN the reference visualizer's defaults: 8x8 tiles, K=6, capacity 42
	rowCfg := DefaultConfig()
	grpCfg := DefaultConfig()
	grpCfg.Mode = ModeGrouped

	row := newTestSimulator(t, rowCfg)
	row.SetShuffler(IdentityShuffler)
	grp := newTestSimulator(t, grpCfg)
	grp.SetShuffler(IdentityShuffler)

	// WHEN both run to completion
	rowFinal := row.RunToCompletion()
	grpFinal := grp.RunToCompletion()

	// THEN grouped ordering reuses more tiles
	assert.Equal(t, rowFinal.Counters.Total(), grpFinal.Counters.Total())
	assert.Greater(t, grpFinal.Counters.HitRate(), rowFinal.Counters.HitRate())
	// AND row-major never reuses a B-tile: a row's working set exceeds the cache
	assert.Equal(t, 0, rowFinal.Counters.HitsB)
}

func TestSimulator_Reset_Idempotent(t *testing.T) {
	s := newTestSimulator(t, DefaultConfig())
	for _, steps := range []int{0, 1, 17, 1000} {
		for i := 0; i < steps; i++ {
			s.Advance()
		}
		s.Reset()

		st := s.State()
		assert.Equal(t, 0, st.MicroStep)
		assert.Equal(t, 0, st.Cache.Len())
		assert.Equal(t, Counters{}, st.Counters)
		assert.Equal(t, StatusIdle, s.Status())

		s.Reset()
		assert.Equal(t, 0, s.State().MicroStep)
	}
}

func TestSimulator_SameSeed_ReplaysIdentically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCTAs = 4
	cfg.CacheCapacity = 12

	a := newTestSimulator(t, cfg).RunToCompletion()
	b := newTestSimulator(t, cfg).RunToCompletion()
	assert.Equal(t, a.Counters, b.Counters)
	assert.Equal(t, a.Cache.Contents(), b.Cache.Contents())

	// AND a reset replays the same run
	s := newTestSimulator(t, cfg)
	first := s.RunToCompletion()
	s.Reset()
	second := s.RunToCompletion()
	assert.Equal(t, first.Counters, second.Counters)
}

func TestSimulator_Reconfigure_InvalidKeepsPreviousState(t *testing.T) {
	// GIVEN a running simulation
	s := newTestSimulator(t, DefaultConfig())
	s.Advance()
	s.Advance()
	before := s.State()

	// WHEN an invalid configuration is applied
	bad := DefaultConfig()
	bad.CacheCapacity = 0
	err := s.Reconfigure(bad)

	// THEN it is rejected and nothing changes
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, DefaultConfig(), s.Config())
	assert.Equal(t, before.MicroStep, s.State().MicroStep)
	assert.Equal(t, before.Counters, s.State().Counters)
}

func TestSimulator_Reconfigure_ValidResets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity", func(c *Config) { c.CacheCapacity = 10 }},
		{"ctas", func(c *Config) { c.NumCTAs = 3 }},
		{"mode", func(c *Config) { c.Mode = ModeGrouped }},
		{"group", func(c *Config) { c.GroupSizeM = 4 }},
		{"dims", func(c *Config) { c.M, c.N, c.K = 5, 6, 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSimulator(t, DefaultConfig())
			s.Advance()

			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.NoError(t, s.Reconfigure(cfg))

			assert.Equal(t, StatusIdle, s.Status())
			assert.Equal(t, cfg, s.Config())
			assert.Equal(t, cfg.CacheCapacity, s.State().Cache.Capacity())
			assert.Equal(t, TotalMicroSteps(len(s.Plan().Schedule), cfg.NumCTAs, cfg.K), s.Plan().TotalMicroSteps)
		})
	}
}

func TestAdvance_Pure_InputStateUntouched(t *testing.T) {
	// GIVEN a plan and a state with one step applied
	plan, err := NewPlan(smallConfig(ModeRowMajor))
	require.NoError(t, err)
	st1 := Advance(plan, Reset(plan), IdentityShuffler, nil)
	contents := st1.Cache.Contents()

	// WHEN advancing from it
	st2 := Advance(plan, st1, IdentityShuffler, nil)

	// THEN the earlier state is unchanged
	assert.Equal(t, 1, st1.MicroStep)
	assert.Equal(t, contents, st1.Cache.Contents())
	assert.Equal(t, Counters{Misses: 2, MissesA: 1, MissesB: 1}, st1.Counters)
	assert.Equal(t, 2, st2.MicroStep)
	assert.NotSame(t, st1.Cache, st2.Cache)
}

func TestSimulator_Snapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCTAs = 3
	s := newTestSimulator(t, cfg)

	// Idle: shows step 0 of batch 0
	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, 0, snap.BatchIndex)
	assert.Equal(t, 0, snap.KIndex)
	assert.Equal(t, 3, snap.ActiveCTAs)
	assert.Equal(t, []TileID{ATile(0, 0), ATile(0, 0), ATile(0, 0)}, snap.ActiveA)
	assert.Equal(t, []TileID{BTile(0, 0), BTile(0, 1), BTile(0, 2)}, snap.ActiveB)
	assert.InDelta(t, 1.0/6.0, snap.KProgress, 1e-9)
	assert.Empty(t, snap.Cache)
	assert.False(t, snap.PrimaryAHit)

	// After one step the primary CTA's k=1 tiles are not yet loaded
	s.Advance()
	snap = s.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 1, snap.KIndex)
	assert.Len(t, snap.Cache, 4) // A-0-0, B-0-0, B-0-1, B-0-2

	// Finished: shows the last step, a partial batch of 64 % 3 = 1 tile
	s.RunToCompletion()
	snap = s.Snapshot()
	assert.Equal(t, StatusFinished, snap.Status)
	assert.Equal(t, snap.TotalMicroSteps, snap.MicroStep)
	assert.Equal(t, 21, snap.BatchIndex)
	assert.Equal(t, 5, snap.KIndex)
	assert.Equal(t, 1, snap.ActiveCTAs)
	assert.InDelta(t, 1.0, snap.KProgress, 1e-9)
	assert.True(t, snap.PrimaryAHit)
	assert.True(t, snap.PrimaryBHit)
}

package sim

// Snapshot is the read-only view a renderer consumes. It is computed under the
// simulator lock, so it never mixes two configurations or two steps.
type Snapshot struct {
	Config          Config  `json:"config"`
	Seed            int64   `json:"seed"`
	Status          Status  `json:"status"`
	MicroStep       int     `json:"micro_step"`
	TotalMicroSteps int     `json:"total_micro_steps"`
	BatchIndex      int     `json:"batch_index"`
	KIndex          int     `json:"k_index"`
	KProgress       float64 `json:"k_progress"` // (k+1)/K for the displayed step

	ActiveCTAs int         `json:"active_ctas"`
	ActiveA    []TileID    `json:"active_a"`
	ActiveB    []TileID    `json:"active_b"`
	ActiveC    []TileCoord `json:"active_c"`

	Cache         []TileID `json:"cache"` // oldest first
	CacheCapacity int      `json:"cache_capacity"`

	Counters Counters `json:"counters"`
	HitRate  float64  `json:"hit_rate"`
	HitRateA float64  `json:"hit_rate_a"`
	HitRateB float64  `json:"hit_rate_b"`

	// Residency of the first CTA's current A and B tiles.
	PrimaryAHit bool `json:"primary_a_hit"`
	PrimaryBHit bool `json:"primary_b_hit"`
}

// Snapshot returns the current view. Once Finished it shows the last step
// rather than one past the end.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSnapshot(s.plan, s.state, s.key)
}

func buildSnapshot(plan *Plan, st State, key SimulationKey) Snapshot {
	total := plan.TotalMicroSteps
	shown := min(st.MicroStep, total-1)
	batchIndex, kIndex := plan.Locate(shown)
	active := ActiveTilesFor(plan.Batches[batchIndex], kIndex)

	snap := Snapshot{
		Config:          plan.Config,
		Seed:            int64(key),
		Status:          st.StatusFor(total),
		MicroStep:       st.MicroStep,
		TotalMicroSteps: total,
		BatchIndex:      batchIndex,
		KIndex:          kIndex,
		KProgress:       float64(kIndex+1) / float64(plan.Config.K),
		ActiveCTAs:      len(active.C),
		ActiveA:         active.A,
		ActiveB:         active.B,
		ActiveC:         active.C,
		Cache:           st.Cache.Contents(),
		CacheCapacity:   st.Cache.Capacity(),
		Counters:        st.Counters,
		HitRate:         st.Counters.HitRate(),
		HitRateA:        st.Counters.HitRateA(),
		HitRateB:        st.Counters.HitRateB(),
	}
	if len(active.A) > 0 {
		snap.PrimaryAHit = st.Cache.Contains(active.A[0])
		snap.PrimaryBHit = st.Cache.Contains(active.B[0])
	}
	return snap
}

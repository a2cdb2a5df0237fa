package trace

import "sort"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalAccesses int
	Hits          int
	Misses        int
	Evictions     int

	// CompulsoryMisses are first loads of a tile; ReloadMisses are misses on
	// a tile that was resident earlier and got evicted.
	CompulsoryMisses int
	ReloadMisses     int

	UniqueTiles   int
	MissesPerTile map[string]int // tile ID → misses
	MostReloaded  []string       // tiles with the highest reload count, sorted
	MaxReloads    int
	StepsRecorded int
	PeakCacheLen  int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MissesPerTile: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalAccesses = len(st.Accesses)
	for _, a := range st.Accesses {
		if a.Evicted != "" {
			summary.Evictions++
		}
		if a.Hit {
			summary.Hits++
			continue
		}
		summary.Misses++
		if summary.MissesPerTile[a.Tile] == 0 {
			summary.CompulsoryMisses++
		} else {
			summary.ReloadMisses++
		}
		summary.MissesPerTile[a.Tile]++
	}
	summary.UniqueTiles = len(summary.MissesPerTile)

	for tile, misses := range summary.MissesPerTile {
		reloads := misses - 1
		switch {
		case reloads <= 0:
		case reloads > summary.MaxReloads:
			summary.MaxReloads = reloads
			summary.MostReloaded = []string{tile}
		case reloads == summary.MaxReloads:
			summary.MostReloaded = append(summary.MostReloaded, tile)
		}
	}
	sort.Strings(summary.MostReloaded)

	summary.StepsRecorded = len(st.Steps)
	for _, s := range st.Steps {
		if s.CacheLen > summary.PeakCacheLen {
			summary.PeakCacheLen = s.CacheLen
		}
	}
	return summary
}

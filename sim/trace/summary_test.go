package trace

import (
	"reflect"
	"testing"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAccesses})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalAccesses != 0 || summary.Hits != 0 || summary.Misses != 0 {
		t.Error("expected zero access counts")
	}
	if summary.UniqueTiles != 0 || summary.MaxReloads != 0 {
		t.Error("expected zero tile statistics")
	}
	if len(summary.MissesPerTile) != 0 {
		t.Error("expected empty miss distribution")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary == nil || summary.TotalAccesses != 0 {
		t.Fatal("expected zero-value summary for nil trace")
	}
}

func TestSummarize_PopulatedTrace_SplitsCompulsoryAndReload(t *testing.T) {
	// GIVEN the 2x2 row-major run: misses A-0-0 B-0-0 B-0-1 A-1-0 B-0-0 B-0-1
	st := runTraced(t, TraceLevelAccesses)

	// WHEN summarized
	summary := Summarize(st)

	// THEN four tiles load once and two B-tiles reload once each
	if summary.TotalAccesses != 8 || summary.Hits != 2 || summary.Misses != 6 {
		t.Errorf("got %d accesses, %d hits, %d misses; want 8, 2, 6", summary.TotalAccesses, summary.Hits, summary.Misses)
	}
	if summary.CompulsoryMisses != 4 {
		t.Errorf("expected 4 compulsory misses, got %d", summary.CompulsoryMisses)
	}
	if summary.ReloadMisses != 2 {
		t.Errorf("expected 2 reload misses, got %d", summary.ReloadMisses)
	}
	if summary.Evictions != 4 {
		t.Errorf("expected 4 evictions, got %d", summary.Evictions)
	}
	if summary.UniqueTiles != 4 {
		t.Errorf("expected 4 unique tiles, got %d", summary.UniqueTiles)
	}
	if summary.MaxReloads != 1 || !reflect.DeepEqual(summary.MostReloaded, []string{"B-0-0", "B-0-1"}) {
		t.Errorf("most reloaded = %v (%d), want [B-0-0 B-0-1] (1)", summary.MostReloaded, summary.MaxReloads)
	}
	if summary.StepsRecorded != 4 || summary.PeakCacheLen != 2 {
		t.Errorf("steps=%d peak=%d, want 4 and 2", summary.StepsRecorded, summary.PeakCacheLen)
	}
}

func TestSummarize_MissesPerTile_CountsEachMiss(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAccesses})
	st.RecordAccess(AccessRecord{Tile: "A-0-0"})
	st.RecordAccess(AccessRecord{Tile: "A-0-0", Hit: true})
	st.RecordAccess(AccessRecord{Tile: "A-0-0"})
	st.RecordAccess(AccessRecord{Tile: "A-0-0"})
	st.RecordAccess(AccessRecord{Tile: "B-1-1"})

	summary := Summarize(st)

	if summary.MissesPerTile["A-0-0"] != 3 {
		t.Errorf("expected A-0-0 misses 3, got %d", summary.MissesPerTile["A-0-0"])
	}
	if summary.MaxReloads != 2 || !reflect.DeepEqual(summary.MostReloaded, []string{"A-0-0"}) {
		t.Errorf("most reloaded = %v (%d), want [A-0-0] (2)", summary.MostReloaded, summary.MaxReloads)
	}
}

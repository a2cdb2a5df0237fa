// Package testutil provides shared test infrastructure for the simulator.
// It holds the golden dataset types and assertion helpers used by sim/ and
// its sub-package tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase represents a single test case from the golden dataset.
// Configuration fields mirror sim.Config; they are duplicated here so that
// package sim tests can import testutil without a cycle.
type GoldenTestCase struct {
	Name          string        `json:"name"`
	M             int           `json:"m"`
	N             int           `json:"n"`
	K             int           `json:"k"`
	BlockSizeM    int           `json:"block_size_m"`
	BlockSizeN    int           `json:"block_size_n"`
	Mode          string        `json:"mode"`
	GroupSizeM    int           `json:"group_size_m"`
	NumCTAs       int           `json:"num_ctas"`
	CacheCapacity int           `json:"cache_capacity"`
	Order         string        `json:"order"` // "identity" or "reverse"; random orders are not golden
	Metrics       GoldenMetrics `json:"metrics"`
}

// GoldenMetrics represents the expected outcome of a golden test case.
type GoldenMetrics struct {
	// Exact match metrics (integers)
	MicroSteps int `json:"micro_steps"`
	Hits       int `json:"hits"`
	Misses     int `json:"misses"`
	HitsA      int `json:"hits_a"`
	MissesA    int `json:"misses_a"`
	HitsB      int `json:"hits_b"`
	MissesB    int `json:"misses_b"`

	HitRate float64 `json:"hit_rate"`

	// Oldest first; omitted when not hand-checked.
	FinalCache []string `json:"final_cache,omitempty"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

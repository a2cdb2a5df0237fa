// Package trace provides per-access trace recording for cache reuse analysis.
// Records are plain data; Observer adapts a SimulationTrace to sim.Observer.
package trace

// AccessRecord captures a single tile load and its cache outcome.
type AccessRecord struct {
	MicroStep  int
	BatchIndex int
	KIndex     int
	Order      int    // position in the shuffled request order
	CTA        int    // issuing CTA within the batch
	Tile       string // "A-m-k" or "B-k-n"
	Origin     string // "A" or "B"
	Hit        bool
	Evicted    string // tile evicted by this access, "" if none
}

// StepRecord captures one micro-step's outcome.
type StepRecord struct {
	MicroStep  int
	BatchIndex int
	KIndex     int
	Requests   int
	Hits       int
	Misses     int
	CacheLen   int
}

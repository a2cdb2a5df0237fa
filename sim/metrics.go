// Tracks simulation-wide hit/miss counters, globally and per input matrix.

package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Counters aggregates cache outcomes. Origin splits are kept only for
// reporting; they never influence cache placement.
type Counters struct {
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
	HitsA   int `json:"hits_a"`
	MissesA int `json:"misses_a"`
	HitsB   int `json:"hits_b"`
	MissesB int `json:"misses_b"`
}

// Record counts one access outcome.
func (c *Counters) Record(origin Origin, hit bool) {
	switch {
	case hit && origin == OriginA:
		c.Hits++
		c.HitsA++
	case hit:
		c.Hits++
		c.HitsB++
	case origin == OriginA:
		c.Misses++
		c.MissesA++
	default:
		c.Misses++
		c.MissesB++
	}
}

// Add returns the element-wise sum of two counters.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Hits:    c.Hits + o.Hits,
		Misses:  c.Misses + o.Misses,
		HitsA:   c.HitsA + o.HitsA,
		MissesA: c.MissesA + o.MissesA,
		HitsB:   c.HitsB + o.HitsB,
		MissesB: c.MissesB + o.MissesB,
	}
}

// Total is the number of accesses counted.
func (c Counters) Total() int { return c.Hits + c.Misses }

// HitRate returns hits/total in [0, 1], or 0 when nothing was accessed.
func (c Counters) HitRate() float64 { return ratio(c.Hits, c.Total()) }

// HitRateA returns the A-tile hit rate.
func (c Counters) HitRateA() float64 { return ratio(c.HitsA, c.HitsA+c.MissesA) }

// HitRateB returns the B-tile hit rate.
func (c Counters) HitRateB() float64 { return ratio(c.HitsB, c.HitsB+c.MissesB) }

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// MetricsOutput is the JSON document written at the end of a run.
type MetricsOutput struct {
	Mode            Mode     `json:"mode"`
	M               int      `json:"m"`
	N               int      `json:"n"`
	K               int      `json:"k"`
	GroupSizeM      int      `json:"group_size_m"`
	NumCTAs         int      `json:"num_ctas"`
	CacheCapacity   int      `json:"cache_capacity"`
	Seed            int64    `json:"seed"`
	MicroSteps      int      `json:"micro_steps"`
	TotalMicroSteps int      `json:"total_micro_steps"`
	Counters        Counters `json:"counters"`
	HitRate         float64  `json:"hit_rate"`
	HitRateA        float64  `json:"hit_rate_a"`
	HitRateB        float64  `json:"hit_rate_b"`
}

// NewMetricsOutput assembles the report for a finished (or partial) run.
func NewMetricsOutput(cfg Config, key SimulationKey, st State, totalMicroSteps int) MetricsOutput {
	return MetricsOutput{
		Mode:            cfg.Mode,
		M:               cfg.M,
		N:               cfg.N,
		K:               cfg.K,
		GroupSizeM:      cfg.GroupSizeM,
		NumCTAs:         cfg.NumCTAs,
		CacheCapacity:   cfg.CacheCapacity,
		Seed:            int64(key),
		MicroSteps:      st.MicroStep,
		TotalMicroSteps: totalMicroSteps,
		Counters:        st.Counters,
		HitRate:         st.Counters.HitRate(),
		HitRateA:        st.Counters.HitRateA(),
		HitRateB:        st.Counters.HitRateB(),
	}
}

// Print writes a human-readable summary.
func (mo MetricsOutput) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Simulation Metrics ===")
	_, _ = fmt.Fprintf(w, "Mode                 : %s (group size %d)\n", mo.Mode, mo.GroupSizeM)
	_, _ = fmt.Fprintf(w, "Problem              : M=%d N=%d K=%d\n", mo.M, mo.N, mo.K)
	_, _ = fmt.Fprintf(w, "CTAs / Cache         : %d / %d tiles\n", mo.NumCTAs, mo.CacheCapacity)
	_, _ = fmt.Fprintf(w, "Micro-steps          : %d / %d\n", mo.MicroSteps, mo.TotalMicroSteps)
	_, _ = fmt.Fprintf(w, "Accesses             : %d\n", mo.Counters.Total())
	_, _ = fmt.Fprintf(w, "Hits / Misses        : %d / %d\n", mo.Counters.Hits, mo.Counters.Misses)
	_, _ = fmt.Fprintf(w, "Hit Rate             : %.1f%%\n", 100*mo.HitRate)
	_, _ = fmt.Fprintf(w, "A Hit Rate           : %.1f%% (%d/%d)\n", 100*mo.HitRateA, mo.Counters.HitsA, mo.Counters.HitsA+mo.Counters.MissesA)
	_, _ = fmt.Fprintf(w, "B Hit Rate           : %.1f%% (%d/%d)\n", 100*mo.HitRateB, mo.Counters.HitsB, mo.Counters.HitsB+mo.Counters.MissesB)
}

// SaveResults prints the summary to stdout and, when outputPath is set, writes
// the JSON document there.
func (mo MetricsOutput) SaveResults(outputPath string) error {
	mo.Print(os.Stdout)
	if outputPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(mo, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling metrics: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", outputPath, err)
	}
	logrus.Infof("Metrics written to %s", outputPath)
	return nil
}

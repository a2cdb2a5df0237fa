package sweep

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/swizzle-sim/sim"
)

// Row summarizes one scenario across all repeats.
type Row struct {
	Name            string     `json:"name"`
	Config          sim.Config `json:"config"`
	Repeats         int        `json:"repeats"`
	TotalMicroSteps int        `json:"total_micro_steps"`
	Accesses        int        `json:"accesses"` // per repeat
	MeanHitRate     float64    `json:"mean_hit_rate"`
	StdHitRate      float64    `json:"std_hit_rate"`
	MinHitRate      float64    `json:"min_hit_rate"`
	MaxHitRate      float64    `json:"max_hit_rate"`
	MeanHitRateA    float64    `json:"mean_hit_rate_a"`
	MeanHitRateB    float64    `json:"mean_hit_rate_b"`
	MeanMisses      float64    `json:"mean_misses"`
}

// RepeatKeys derives one simulation key per repeat from the sweep seed.
// Every scenario uses the same keys so rows are compared under identical
// request orders where their schedules coincide.
func RepeatKeys(seed int64, repeats int) []sim.SimulationKey {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
	keys := make([]sim.SimulationKey, repeats)
	for i := range keys {
		keys[i] = sim.NewSimulationKey(rng.ForSubsystem(sim.SubsystemRepeat(i)).Int63())
	}
	return keys
}

type job struct {
	scenario int
	repeat   int
}

// Run simulates every scenario of spec to completion and returns one row per
// scenario in declaration order. Scenarios run on a bounded worker pool;
// results do not depend on scheduling.
func Run(ctx context.Context, spec *Spec) ([]Row, error) {
	scenarios, err := spec.Expand()
	if err != nil {
		return nil, err
	}
	repeats := spec.RepeatCount()
	keys := RepeatKeys(spec.Seed, repeats)

	workers := spec.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([][]sim.Counters, len(scenarios))
	for i := range results {
		results[i] = make([]sim.Counters, repeats)
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				s, err := sim.NewSimulator(scenarios[j.scenario].Config, keys[j.repeat])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("scenario %q: %w", scenarios[j.scenario].Name, err)
					}
					mu.Unlock()
					continue
				}
				// Each job owns its slot; no lock needed.
				results[j.scenario][j.repeat] = s.RunToCompletion().Counters
			}
		}()
	}

feed:
	for i := range scenarios {
		for r := 0; r < repeats; r++ {
			select {
			case jobs <- job{scenario: i, repeat: r}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	rows := make([]Row, len(scenarios))
	for i, sc := range scenarios {
		plan, err := sim.NewPlan(sc.Config)
		if err != nil {
			return nil, err
		}
		rows[i] = summarize(sc, plan.TotalMicroSteps, results[i])
		logrus.Debugf("sweep %s: hit rate %.4f over %d repeats", sc.Name, rows[i].MeanHitRate, repeats)
	}
	return rows, nil
}

func summarize(sc Scenario, totalMicroSteps int, runs []sim.Counters) Row {
	row := Row{
		Name:            sc.Name,
		Config:          sc.Config,
		Repeats:         len(runs),
		TotalMicroSteps: totalMicroSteps,
		MinHitRate:      math.Inf(1),
		MaxHitRate:      math.Inf(-1),
	}
	if len(runs) == 0 {
		row.MinHitRate, row.MaxHitRate = 0, 0
		return row
	}
	row.Accesses = runs[0].Total()

	n := float64(len(runs))
	var sum, sumSq float64
	for _, c := range runs {
		rate := c.HitRate()
		sum += rate
		sumSq += rate * rate
		row.MinHitRate = math.Min(row.MinHitRate, rate)
		row.MaxHitRate = math.Max(row.MaxHitRate, rate)
		row.MeanHitRateA += c.HitRateA() / n
		row.MeanHitRateB += c.HitRateB() / n
		row.MeanMisses += float64(c.Misses) / n
	}
	row.MeanHitRate = sum / n
	if variance := sumSq/n - row.MeanHitRate*row.MeanHitRate; variance > 0 {
		row.StdHitRate = math.Sqrt(variance)
	}
	return row
}

// PrintTable writes rows as an aligned text table.
func PrintTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SCENARIO\tMODE\tGROUP\tCTAS\tCAPACITY\tSTEPS\tHIT RATE\tSTD\tA HIT\tB HIT")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.2f%%\t%.2f\t%.2f%%\t%.2f%%\n",
			r.Name, r.Config.Mode, r.Config.GroupSizeM, r.Config.NumCTAs, r.Config.CacheCapacity,
			r.TotalMicroSteps, 100*r.MeanHitRate, 100*r.StdHitRate, 100*r.MeanHitRateA, 100*r.MeanHitRateB)
	}
	return tw.Flush()
}

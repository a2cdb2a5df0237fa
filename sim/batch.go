// batch.go
//
// Defines the Batch type which represents the output tiles processed together
// by the simulated CTAs during one pass over K.

package sim

// Batch is a contiguous slice of the schedule, one tile per active CTA.
// Batches alias the schedule; they are never mutated.
type Batch struct {
	Index int         // position of this batch in the plan
	Tiles []TileCoord // output tiles processed concurrently
}

// BatchCount returns ceil(scheduleLen / numCTAs).
func BatchCount(scheduleLen, numCTAs int) int {
	if scheduleLen == 0 {
		return 0
	}
	return ceilDiv(scheduleLen, numCTAs)
}

// TotalMicroSteps returns the number of micro-steps needed to finish the schedule.
func TotalMicroSteps(scheduleLen, numCTAs, k int) int {
	return BatchCount(scheduleLen, numCTAs) * k
}

// PlanBatches partitions the schedule into batches of at most numCTAs tiles.
// The last batch holds the remainder when the schedule does not divide evenly.
func PlanBatches(schedule []TileCoord, numCTAs int) []Batch {
	count := BatchCount(len(schedule), numCTAs)
	batches := make([]Batch, 0, count)
	for i := 0; i < count; i++ {
		start := i * numCTAs
		end := min(start+numCTAs, len(schedule))
		batches = append(batches, Batch{Index: i, Tiles: schedule[start:end]})
	}
	return batches
}

// Plan is everything derived from a validated Config: the schedule, its batches
// and the step count. It has no state of its own.
type Plan struct {
	Config          Config
	Schedule        []TileCoord
	Batches         []Batch
	TotalMicroSteps int
}

// NewPlan validates cfg and derives the plan for it.
func NewPlan(cfg Config) (*Plan, error) {
	var memo ScheduleMemo
	return newPlanWithMemo(cfg, &memo)
}

func newPlanWithMemo(cfg Config, memo *ScheduleMemo) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedule, err := memo.Get(cfg)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Config:          cfg,
		Schedule:        schedule,
		Batches:         PlanBatches(schedule, cfg.NumCTAs),
		TotalMicroSteps: TotalMicroSteps(len(schedule), cfg.NumCTAs, cfg.K),
	}, nil
}

// Locate maps a micro-step to its batch index and reduction index.
func (p *Plan) Locate(microStep int) (batchIndex, kIndex int) {
	return microStep / p.Config.K, microStep % p.Config.K
}

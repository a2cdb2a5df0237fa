package sim

// AccessEvent describes one request applied to the cache.
type AccessEvent struct {
	MicroStep  int // micro-step the access belongs to (before increment)
	BatchIndex int
	KIndex     int
	Order      int // position in the shuffled request order
	Request    AccessRequest
	Result     AccessResult
}

// StepEvent describes one completed micro-step.
type StepEvent struct {
	MicroStep  int // micro-step that was executed (before increment)
	BatchIndex int
	KIndex     int
	Requests   int      // requests issued during the step (2 per active CTA)
	Step       Counters // outcomes of this step only
	Cumulative Counters // running totals after the step
	CacheLen   int
}

// Observer receives simulation events as they happen. Implementations must
// not retain or mutate the cache; they see values only.
type Observer interface {
	ObserveAccess(ev AccessEvent)
	ObserveStep(ev StepEvent)
}

// observers fans events out to several observers in registration order.
type observers []Observer

func (list observers) ObserveAccess(ev AccessEvent) {
	for _, o := range list {
		o.ObserveAccess(ev)
	}
}

func (list observers) ObserveStep(ev StepEvent) {
	for _, o := range list {
		o.ObserveStep(ev)
	}
}

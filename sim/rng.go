package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce identical hit/miss sequences.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// UnseededKey returns a key derived from the wall clock. This matches the
// reference behavior of an unseeded shuffle while still letting the key be
// logged so a surprising run can be replayed.
func UnseededKey() SimulationKey {
	return SimulationKey(time.Now().UnixNano())
}

// === Subsystem Constants ===

const (
	// SubsystemAccessOrder is the RNG subsystem that permutes each micro-step's requests.
	// Uses master seed directly.
	SubsystemAccessOrder = "access_order"
)

// SubsystemRepeat returns the subsystem name for sweep repeat N. Each repeat's
// simulation key is the first draw of its subsystem.
func SubsystemRepeat(id int) string {
	return fmt.Sprintf("repeat_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemAccessOrder: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemAccessOrder {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// === Shufflers ===

// Shuffler permutes n pooled requests by calling swap. *rand.Rand satisfies it
// with a Fisher-Yates shuffle.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// ShuffleFunc adapts a function to Shuffler.
type ShuffleFunc func(n int, swap func(i, j int))

// Shuffle calls f.
func (f ShuffleFunc) Shuffle(n int, swap func(i, j int)) { f(n, swap) }

// IdentityShuffler keeps requests in emission order: for each tile, A then B.
var IdentityShuffler Shuffler = ShuffleFunc(func(int, func(i, j int)) {})

// ReverseShuffler reverses emission order.
var ReverseShuffler Shuffler = ShuffleFunc(func(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
})

// PermutationShuffler applies a fixed permutation: after shuffling, position i
// holds the element that was at perm[i]. Permutations whose length differs
// from n are ignored.
func PermutationShuffler(perm []int) Shuffler {
	return ShuffleFunc(func(n int, swap func(i, j int)) {
		if len(perm) != n {
			return
		}
		// pos[e] is where original element e currently sits; at[p] is the element at p.
		pos := make([]int, n)
		at := make([]int, n)
		for i := range pos {
			pos[i], at[i] = i, i
		}
		for i, want := range perm {
			j := pos[want]
			if i == j {
				continue
			}
			swap(i, j)
			ei, ej := at[i], at[j]
			at[i], at[j] = ej, ei
			pos[ej], pos[ei] = i, j
		}
	})
}

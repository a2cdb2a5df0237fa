// Generates the traversal order of output tiles for a blocked matrix multiplication.

package sim

import "fmt"

// TileCoord is the position of an output tile in the result grid.
// PID is the program id that visits it.
type TileCoord struct {
	M   int `json:"m"`
	N   int `json:"n"`
	PID int `json:"pid"`
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// GridShape returns the number of output blocks along M and N.
func GridShape(m, n, blockM, blockN int) (numPidM, numPidN int) {
	return ceilDiv(m, blockM), ceilDiv(n, blockN)
}

// GenerateSchedule returns the order in which program ids visit output tiles.
//
// Row-major walks N fast and M slow. Grouped follows Triton's swizzle: groupSizeM
// consecutive rows are swept column by column before the next group starts, so
// A-tiles of the group stay hot while B-columns stream past. The final group may
// be shorter than groupSizeM.
func GenerateSchedule(m, n, blockM, blockN, groupSizeM int, mode Mode) ([]TileCoord, error) {
	if m <= 0 || n <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got M=%d N=%d", ErrInvalidConfig, m, n)
	}
	if blockM <= 0 || blockN <= 0 {
		return nil, fmt.Errorf("%w: block sizes must be positive, got %dx%d", ErrInvalidConfig, blockM, blockN)
	}
	if groupSizeM <= 0 || groupSizeM > m {
		return nil, fmt.Errorf("%w: group size must be in [1, %d], got %d", ErrInvalidConfig, m, groupSizeM)
	}
	if !validModes[mode] {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)
	}

	numPidM, numPidN := GridShape(m, n, blockM, blockN)
	totalBlocks := numPidM * numPidN
	schedule := make([]TileCoord, 0, totalBlocks)

	for pid := 0; pid < totalBlocks; pid++ {
		var pidM, pidN int
		if mode == ModeRowMajor {
			pidM = pid / numPidN
			pidN = pid % numPidN
		} else {
			numPidInGroup := groupSizeM * numPidN
			groupID := pid / numPidInGroup
			firstPidM := groupID * groupSizeM
			curGroupSizeM := min(numPidM-firstPidM, groupSizeM)
			pidM = firstPidM + (pid%numPidInGroup)%curGroupSizeM
			pidN = (pid % numPidInGroup) / curGroupSizeM
		}
		schedule = append(schedule, TileCoord{M: pidM, N: pidN, PID: pid})
	}
	return schedule, nil
}

// ScheduleMemo caches the most recent schedule keyed on its inputs, so that
// configuration changes that do not touch the schedule (capacity, CTA count, K)
// do not regenerate it.
type ScheduleMemo struct {
	key      scheduleKey
	schedule []TileCoord
	valid    bool
}

// Get returns the schedule for cfg, generating it only when the inputs changed.
func (sm *ScheduleMemo) Get(cfg Config) ([]TileCoord, error) {
	key := cfg.scheduleKey()
	if sm.valid && sm.key == key {
		return sm.schedule, nil
	}
	schedule, err := GenerateSchedule(cfg.M, cfg.N, cfg.BlockSizeM, cfg.BlockSizeN, cfg.GroupSizeM, cfg.Mode)
	if err != nil {
		return nil, err
	}
	sm.key, sm.schedule, sm.valid = key, schedule, true
	return schedule, nil
}

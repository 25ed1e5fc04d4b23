package blockweight

import (
	"fmt"
	"slices"
)

// RaiseIndex is the sorted position whose vote must exceed the current
// multiplier for it to rise: at least 75% of the interval voted higher.
func RaiseIndex(interval uint64) uint64 {
	return (25 * interval) / 100
}

// LowerIndex is the sorted position whose vote must be below the current
// multiplier for it to fall: at least 75% of the interval voted lower.
func LowerIndex(interval uint64) uint64 {
	return (75*interval)/100 - 1
}

// Decide computes the multiplier following an interval with the given votes.
// votes holds one entry per block of the interval with no-opinion votes
// already replaced by current; it is not modified. Unless firstActivation is
// set the result moves at most one step from current. The second result is
// false when the multiplier stays put.
//
// Decide panics if the percentile values are inconsistent, which cannot
// happen for well formed input.
func Decide(votes []uint32, current uint32, firstActivation bool) (uint32, bool) {
	sorted := slices.Clone(votes)
	slices.Sort(sorted)

	interval := uint64(len(sorted))
	lowerValue := sorted[LowerIndex(interval)]
	raiseValue := sorted[RaiseIndex(interval)]

	// Only the first activation, from a rescan or an override, may jump
	// more than one step.
	if !firstActivation {
		if raiseValue > current {
			raiseValue = current + 1
		}
		if lowerValue < current {
			lowerValue = current - 1
		}
	}

	if lowerValue < 1 {
		panic(fmt.Sprintf("blockweight: lower percentile vote %d below minimum 1", lowerValue))
	}
	if lowerValue < raiseValue {
		panic(fmt.Sprintf("blockweight: lower percentile vote %d below raise percentile vote %d", lowerValue, raiseValue))
	}

	switch {
	case raiseValue > current:
		return raiseValue, true
	case lowerValue < current:
		return lowerValue, true
	default:
		return current, false
	}
}

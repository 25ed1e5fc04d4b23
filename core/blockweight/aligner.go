package blockweight

import (
	"github.com/pkg/errors"
)

// atBoundary reports whether height closes a retarget interval.
func (e *Engine) atBoundary(height uint64) bool {
	return (height+1)%e.params.Interval == 0
}

// startup performs the one-time work of the first tip seen by the process.
// It returns the tip to continue from, or false if this call is done.
func (e *Engine) startup(tip BlockRef) (BlockRef, bool) {
	if v := e.cfg.OverrideMultiplier; v > 0 && v < MaxOverrideMultiplier {
		before := e.multiplier.Load()
		e.multiplier.store(v)
		e.sink.Emit(Event{Kind: EventOverride, Height: tip.Height(), Before: before, After: v})
		return nil, false
	}

	if !e.cfg.Enabled {
		e.sink.Emit(Event{Kind: EventDisabled, Height: tip.Height()})
		return nil, false
	}

	if e.cfg.RescanToBoundary {
		aligned, err := e.rescan(tip)
		if err != nil {
			e.sink.Emit(Event{Kind: EventRescanAborted, Height: tip.Height(), Err: err})
			return nil, false
		}
		tip = aligned
	}

	e.sink.Emit(Event{Kind: EventFirstActivation, Height: tip.Height()})
	return tip, true
}

// rescan walks back from tip to the closest interval boundary at or below
// it. Height zero ends the walk even when it is not a boundary.
func (e *Engine) rescan(tip BlockRef) (BlockRef, error) {
	ref := tip
	for ref.Height() != 0 && !e.atBoundary(ref.Height()) {
		parent := ref.Parent()
		if parent == nil {
			return nil, errors.Wrapf(ErrInsufficientHistory, "no parent below height %d", ref.Height())
		}
		ref = parent
	}
	return ref, nil
}

package blockweight

import (
	"github.com/pkg/errors"
)

// classify returns the class of vote and the value it contributes. A missing
// vote counts as a vote for the current multiplier.
func classify(vote, current uint32) (VoteClass, uint32) {
	switch {
	case vote == 0:
		return NoOpinion, current
	case vote == current:
		return Unchanged, vote
	case vote < current:
		return Down, vote
	default:
		return Up, vote
	}
}

// collectVotes reads one vote from each of the interval blocks ending at tip.
// Votes are classified against current, the multiplier before this retarget.
// Any unreadable block, missing coinbase or missing ancestor abandons the
// collection.
func (e *Engine) collectVotes(tip BlockRef, current uint32) ([]uint32, Tally, error) {
	var (
		tally Tally
		last  BlockRef
	)
	votes := make([]uint32, 0, e.params.Interval)

	it := Ancestors(tip, e.params.Interval)
	for it.Next() {
		ref := it.Ref()
		hash := ref.Hash()

		msg, err := e.store.FetchBlock(&hash)
		if err != nil {
			return nil, tally, errors.Wrapf(ErrBlockUnavailable, "block %s at height %d: %v", hash, ref.Height(), err)
		}

		text, err := coinbaseVoteText(msg, ref.Height(), e.heightEncoder)
		if err != nil {
			return nil, tally, errors.Wrapf(err, "block %s at height %d", hash, ref.Height())
		}

		raw := FindVote(text)
		class, counted := classify(raw, current)
		tally.add(class)
		votes = append(votes, counted)

		e.sink.Emit(Event{
			Kind:     EventVote,
			Height:   ref.Height(),
			Vote:     raw,
			Counted:  counted,
			Class:    class,
			Position: uint64(len(votes)),
		})

		last = ref
	}
	if err := it.Err(); err != nil {
		return nil, tally, err
	}

	// The block preceding the interval must be indexed as well.
	if last == nil || last.Parent() == nil {
		return nil, tally, errors.Wrap(ErrInsufficientHistory, "no block before the interval")
	}

	return votes, tally, nil
}

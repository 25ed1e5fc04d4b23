package blockweight

import (
	"go.uber.org/zap"
)

// EventKind identifies a diagnostic event emitted by the engine.
type EventKind uint8

const (
	// EventOverride reports the startup override being applied.
	EventOverride EventKind = iota
	// EventDisabled reports the first tip seen while the mechanism is disabled.
	EventDisabled
	// EventRescanAborted reports the startup rescan running out of history.
	EventRescanAborted
	// EventFirstActivation reports the start of the first active call.
	EventFirstActivation
	// EventVote reports one classified vote.
	EventVote
	// EventCollectAborted reports an abandoned vote collection.
	EventCollectAborted
	// EventTally reports the per-class totals of a completed collection.
	EventTally
	// EventRetarget reports a multiplier change.
	EventRetarget
	// EventUnmoved reports a retarget that left the multiplier unchanged.
	EventUnmoved
)

var eventKindNames = [...]string{
	"override", "disabled", "rescan-aborted", "first-activation",
	"vote", "collect-aborted", "tally", "retarget", "unmoved",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// VoteClass classifies a vote relative to the current multiplier.
type VoteClass uint8

const (
	NoOpinion VoteClass = iota
	Unchanged
	Down
	Up
)

var voteClassNames = [...]string{"no-opinion", "unchanged", "down", "up"}

func (c VoteClass) String() string {
	if int(c) < len(voteClassNames) {
		return voteClassNames[c]
	}
	return "unknown"
}

// Tally counts the votes of one interval per class.
type Tally struct {
	NoOpinion uint64
	Unchanged uint64
	Down      uint64
	Up        uint64
}

func (t *Tally) add(c VoteClass) {
	switch c {
	case NoOpinion:
		t.NoOpinion++
	case Unchanged:
		t.Unchanged++
	case Down:
		t.Down++
	case Up:
		t.Up++
	}
}

// Total returns the number of votes counted.
func (t Tally) Total() uint64 {
	return t.NoOpinion + t.Unchanged + t.Down + t.Up
}

// Percent returns n as a percentage of the interval length.
func (t Tally) Percent(n uint64) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// Event is a structured diagnostic emitted by the engine. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Height uint64

	// EventVote
	Vote     uint32
	Counted  uint32
	Class    VoteClass
	Position uint64

	// EventOverride, EventRetarget, EventUnmoved
	Before uint32
	After  uint32

	FirstActivation bool

	// EventTally
	Tally Tally

	// EventCollectAborted, EventRescanAborted
	Err error
}

// Sink receives engine diagnostics. Implementations must not block; the
// engine's decisions never depend on them.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// LogSink writes engine events to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a sink logging through l.
func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(ev Event) {
	switch ev.Kind {
	case EventOverride:
		s.log.Info("block weight multiplier override applied",
			zap.Uint32("multiplier", ev.After))
	case EventDisabled:
		s.log.Info("BIPBBB is not enabled", zap.Uint64("height", ev.Height))
	case EventRescanAborted:
		s.log.Warn("rescan to interval boundary reached chain origin",
			zap.Uint64("height", ev.Height), zap.Error(ev.Err))
	case EventFirstActivation:
		s.log.Info("first block weight multiplier activation", zap.Uint64("height", ev.Height))
	case EventVote:
		s.log.Debug("vote",
			zap.Uint64("height", ev.Height),
			zap.Uint32("vote", ev.Vote),
			zap.Uint32("counted", ev.Counted),
			zap.Stringer("class", ev.Class))
	case EventCollectAborted:
		s.log.Warn("vote collection aborted",
			zap.Uint64("height", ev.Height), zap.Error(ev.Err))
	case EventTally:
		t := ev.Tally
		s.log.Info("vote tally",
			zap.Uint64("height", ev.Height),
			zap.Uint64("novote", t.NoOpinion),
			zap.Float64("novotePct", t.Percent(t.NoOpinion)),
			zap.Uint64("nochangevote", t.Unchanged),
			zap.Float64("nochangevotePct", t.Percent(t.Unchanged)),
			zap.Uint64("upvote", t.Up),
			zap.Float64("upvotePct", t.Percent(t.Up)),
			zap.Uint64("downvote", t.Down),
			zap.Float64("downvotePct", t.Percent(t.Down)))
	case EventRetarget:
		s.log.Info("block weight multiplier retarget",
			zap.Uint64("height", ev.Height),
			zap.Uint32("before", ev.Before),
			zap.Uint32("after", ev.After),
			zap.Bool("firstActivation", ev.FirstActivation))
	case EventUnmoved:
		s.log.Info("block weight multiplier retarget unmoved",
			zap.Uint64("height", ev.Height),
			zap.Uint32("multiplier", ev.Before))
	}
}

package blockweight

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidInterval is returned for a retarget interval too short to hold
// both percentiles.
var ErrInvalidInterval = errors.New("retarget interval must be at least 2 blocks")

// Params are the consensus parameters of the active network.
type Params struct {
	// Interval is the number of blocks between retargets, the difficulty
	// adjustment interval.
	Interval uint64
}

// Config is read once, when the engine is built.
type Config struct {
	// Enabled turns on vote driven retargeting.
	Enabled bool

	// OverrideMultiplier, when in [1, 99999], is applied on the first tip
	// regardless of Enabled. Zero leaves it unset.
	OverrideMultiplier uint32

	// RescanToBoundary makes the first tip walk back to the previous
	// interval boundary so a retarget can happen straight away.
	RescanToBoundary bool
}

// Option configures an Engine.
type Option func(*Engine) error

// WithSink sets the diagnostics sink.
func WithSink(s Sink) Option {
	return func(e *Engine) error {
		e.sink = s
		return nil
	}
}

// WithMultiplier shares m with other readers instead of a private multiplier.
func WithMultiplier(m *Multiplier) Option {
	return func(e *Engine) error {
		if m.Load() < 1 {
			return errors.New("multiplier must be at least 1")
		}
		e.multiplier = m
		return nil
	}
}

// WithHeightEncoder replaces the coinbase height encoding.
func WithHeightEncoder(enc HeightEncoder) Option {
	return func(e *Engine) error {
		e.heightEncoder = enc
		return nil
	}
}

// Engine retargets the block weight multiplier from coinbase votes. OnNewTip
// must be called for every new best tip.
type Engine struct {
	params Params
	cfg    Config
	store  ChainStore

	sink          Sink
	heightEncoder HeightEncoder
	multiplier    *Multiplier

	mu           sync.Mutex
	firstRunDone bool
}

// NewEngine builds an engine reading blocks from store.
func NewEngine(params Params, cfg Config, store ChainStore, opts ...Option) (*Engine, error) {
	if params.Interval < 2 {
		return nil, errors.Wrapf(ErrInvalidInterval, "got %d", params.Interval)
	}
	if store == nil {
		return nil, errors.New("nil chain store")
	}

	e := &Engine{
		params:        params,
		cfg:           cfg,
		store:         store,
		sink:          nopSink{},
		heightEncoder: CoinbaseHeightPrefix,
		multiplier:    NewMultiplier(DefaultMultiplier),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Multiplier returns the current block weight multiplier.
func (e *Engine) Multiplier() uint32 {
	return e.multiplier.Load()
}

// Params returns the engine's consensus parameters.
func (e *Engine) Params() Params {
	return e.params
}

// OnNewTip handles a new best tip. Failures only abandon the current attempt;
// the next qualifying tip tries again.
func (e *Engine) OnNewTip(tip BlockRef) {
	if tip == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.firstRunDone && !e.cfg.Enabled {
		return
	}

	current := e.multiplier.Load()

	firstActivation := !e.firstRunDone
	if firstActivation {
		e.firstRunDone = true

		var ok bool
		if tip, ok = e.startup(tip); !ok {
			return
		}
	}

	if !e.atBoundary(tip.Height()) {
		return
	}

	votes, tally, err := e.collectVotes(tip, current)
	if err != nil {
		e.sink.Emit(Event{Kind: EventCollectAborted, Height: tip.Height(), Err: err})
		return
	}
	e.sink.Emit(Event{Kind: EventTally, Height: tip.Height(), Tally: tally})

	next, changed := Decide(votes, current, firstActivation)
	if !changed {
		e.sink.Emit(Event{Kind: EventUnmoved, Height: tip.Height(), Before: current, After: current})
		return
	}

	e.multiplier.store(next)
	e.sink.Emit(Event{
		Kind:            EventRetarget,
		Height:          tip.Height(),
		Before:          current,
		After:           next,
		FirstActivation: firstActivation,
	})
}

package sim

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// Option tunes a run.
type Option func(*options)

type options struct {
	progress  func(Progress)
	every     int
	log       *zap.Logger
	newSource func(seed uint64) engine.Source
}

// WithProgress receives (completed, total) updates from the running goroutine.
func WithProgress(fn func(Progress)) Option { return func(o *options) { o.progress = fn } }

// WithProgressEvery reports progress every n trials instead of every 1%.
func WithProgressEvery(n int) Option { return func(o *options) { o.every = n } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithSource swaps the dice generator, mostly for tests.
func WithSource(fn func(seed uint64) engine.Source) Option {
	return func(o *options) { o.newSource = fn }
}

func buildOptions(opts []Option) options {
	o := options{newSource: engine.NewSource}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.progress == nil {
		o.progress = func(Progress) {}
	}
	return o
}

// step is one assignment with everything the resolver needs precomputed.
type step struct {
	assignment game.AttackerAssignment
	weapon     game.WeaponProfile
	mods       rules.Modifiers
}

// Run validates cfg and then resolves cfg.Trials independent trials. It
// blocks until every trial is done; progress is reported through
// WithProgress on the calling goroutine.
func Run(cfg Config, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	if v := Validate(cfg); !v.Valid {
		return nil, &ValidationError{Errors: v.Errors}
	}
	phase := cfg.Phase
	if phase == "" {
		phase = game.PhaseShooting
	}
	seed := cfg.Seed
	if seed == 0 {
		s, err := engine.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("seed simulation: %w", err)
		}
		seed = s
	}

	def := cfg.EffectiveDefender()
	steps := make([]step, 0, len(cfg.Attackers))
	perWound := make(map[string]float64, len(cfg.Weapons))
	for _, a := range cfg.Attackers {
		w := cfg.Weapons[a.WeaponID]
		mods := rules.Resolve(w.Rules, cfg.Toggles, def.Target())
		if _, ok := perWound[w.ID]; !ok {
			perWound[w.ID] = game.MeanDamage(w.Damage, mods.Damage)
		}
		steps = append(steps, step{assignment: a, weapon: w, mods: mods})
	}

	every := o.every
	if every <= 0 {
		every = max(1, cfg.Trials/100)
	}

	start := time.Now()
	o.log.Info("simulation started",
		zap.Int("trials", cfg.Trials),
		zap.Int("assignments", len(steps)),
		zap.String("phase", string(phase)),
		zap.Uint64("seed", seed),
	)

	roller := engine.NewRollerFrom(o.newSource(seed))
	records := make([]game.TrialRecord, 0, cfg.Trials)
	for i := 0; i < cfg.Trials; i++ {
		rec := game.TrialRecord{Weapons: make([]game.Tally, 0, len(steps))}
		for _, s := range steps {
			rec.Record(game.Resolve(roller, s.assignment, s.weapon, def, s.mods, phase))
		}
		records = append(records, rec)
		if done := i + 1; done%every == 0 || done == cfg.Trials {
			o.progress(Progress{Completed: done, Total: cfg.Trials})
			o.log.Debug("simulation progress", zap.Int("completed", done), zap.Int("total", cfg.Trials))
		}
	}

	res := newResult(records, def, cfg.Weapons, perWound)
	res.Seed = seed
	res.Phase = phase
	o.log.Info("simulation finished",
		zap.Int("trials", cfg.Trials),
		zap.Float64("mean_damage", res.Mean()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

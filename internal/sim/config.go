// Package sim runs Monte Carlo combat trials and aggregates their outcomes.
package sim

import (
	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

const (
	// MaxTrials bounds a single run.
	MaxTrials = 100000
	// DefaultTrials is used by callers that leave the count unset.
	DefaultTrials = 10000

	// Size limits for one config. They keep a single run bounded in time
	// and memory.
	MaxAttacks        = 10000 // per assignment
	MaxModels         = 100   // per assignment and per defender
	MaxDice           = 100   // dice count, multiplier and modifier of a damage expression
	MaxDieSides       = 20
	MaxCharacteristic = 100 // strength, toughness and wounds
	MaxRuleValue      = 10  // sustained hits, rapid fire, melta
)

// Config describes one simulation request.
type Config struct {
	Trials    int
	Phase     game.Phase
	Attackers []game.AttackerAssignment
	// Weapons holds every profile referenced by Attackers, keyed by weapon ID.
	Weapons  map[string]game.WeaponProfile
	Defender *game.DefenderProfile
	Override DefenderOverride
	Toggles  rules.Set
	// Seed drives every roll in the run. Zero picks a random seed.
	Seed uint64
}

// DefenderOverride replaces individual defender stats when set.
type DefenderOverride struct {
	Toughness *int `json:"toughness,omitempty" yaml:"toughness"`
	Save      *int `json:"save,omitempty" yaml:"save"`
	Wounds    *int `json:"wounds,omitempty" yaml:"wounds"`
	Models    *int `json:"models,omitempty" yaml:"models"`
	Invuln    *int `json:"invuln,omitempty" yaml:"invuln"`
	FNP       *int `json:"fnp,omitempty" yaml:"fnp"`
}

// EffectiveDefender applies the override to the selected defender.
func (c Config) EffectiveDefender() game.DefenderProfile {
	if c.Defender == nil {
		return game.DefenderProfile{}
	}
	d := *c.Defender
	o := c.Override
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.Toughness, o.Toughness)
	set(&d.Save, o.Save)
	set(&d.Wounds, o.Wounds)
	set(&d.Models, o.Models)
	set(&d.Invuln, o.Invuln)
	set(&d.FNP, o.FNP)
	return d
}

// Progress reports completed work units out of total. Units are trials for a
// single run and weapons for a comparison.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Fraction is Completed/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// single returns a copy of c holding only assignment a.
func (c Config) single(a game.AttackerAssignment, seed uint64) Config {
	out := c
	out.Attackers = []game.AttackerAssignment{a}
	out.Weapons = map[string]game.WeaponProfile{}
	if w, ok := c.Weapons[a.WeaponID]; ok {
		out.Weapons[a.WeaponID] = w
	}
	out.Seed = seed
	return out
}

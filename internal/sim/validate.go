package sim

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// ErrInvalidConfig is wrapped by every configuration error returned from Run.
var ErrInvalidConfig = errors.New("invalid simulation config")

// ValidationResult lists every problem found in a Config.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError carries the validation messages out of Run.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Validate checks cfg without running anything.
func Validate(cfg Config) ValidationResult {
	errs := []string{}
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if cfg.Trials < 1 || cfg.Trials > MaxTrials {
		add("trial count must be between 1 and %d, got %d", MaxTrials, cfg.Trials)
	}

	if len(cfg.Attackers) == 0 {
		add("no attackers selected")
	} else {
		anyAttacks, anyWeapon := false, false
		for i, a := range cfg.Attackers {
			if a.Attacks > 0 {
				anyAttacks = true
			}
			if a.Attacks > MaxAttacks {
				add("attacker %d (%s) has %d attacks, at most %d allowed", i+1, a.UnitID, a.Attacks, MaxAttacks)
			}
			if len(a.ModelIDs) > MaxModels {
				add("attacker %d (%s) has %d models, at most %d allowed", i+1, a.UnitID, len(a.ModelIDs), MaxModels)
			}
			w, ok := cfg.Weapons[a.WeaponID]
			if !ok {
				add("attacker %d (%s) references unknown weapon %q", i+1, a.UnitID, a.WeaponID)
				continue
			}
			if a.Attacks > 0 {
				anyWeapon = true
			}
			if w.Skill < 2 || w.Skill > 6 {
				if !w.Rules.Has(rules.Torrent) {
					add("weapon %q hit skill must be 2+ to 6+, got %d", w.ID, w.Skill)
				}
			}
			if w.Strength < 1 || w.Strength > MaxCharacteristic {
				add("weapon %q strength must be 1 to %d, got %d", w.ID, MaxCharacteristic, w.Strength)
			}
		}
		for _, id := range sortedIDs(cfg.Weapons) {
			w := cfg.Weapons[id]
			if e := w.Damage; e.Count > MaxDice || e.Sides > MaxDieSides || e.Mul > MaxDice || abs(e.Mod) > MaxDice {
				add("weapon %q damage %s is too large: at most %dD%d with modifiers up to %d", id, e, MaxDice, MaxDieSides, MaxDice)
			}
			for _, r := range w.Rules.IDs() {
				if n, ok := r.Value(); ok && n > MaxRuleValue {
					add("weapon %q rule %s exceeds %d", id, r, MaxRuleValue)
				}
			}
		}
		if !anyAttacks {
			add("no attacker has an attack count above 0")
		}
		if !anyWeapon {
			add("no weapon with an attack count above 0 is selected")
		}
	}

	if cfg.Defender == nil {
		add("no defender selected")
	} else {
		d := cfg.EffectiveDefender()
		if d.UnitID != "" {
			for _, a := range cfg.Attackers {
				if a.UnitID == d.UnitID {
					add("defender %q is also listed as an attacker", d.UnitID)
					break
				}
			}
		}
		if d.Toughness < 1 || d.Toughness > MaxCharacteristic {
			add("defender toughness must be 1 to %d, got %d", MaxCharacteristic, d.Toughness)
		}
		if d.Save < 2 || d.Save > 7 {
			add("defender save must be 2+ to 6+ (7 for none), got %d", d.Save)
		}
		if d.Wounds < 1 || d.Wounds > MaxCharacteristic {
			add("defender wounds per model must be 1 to %d, got %d", MaxCharacteristic, d.Wounds)
		}
		if d.Models < 1 || d.Models > MaxModels {
			add("defender model count must be 1 to %d, got %d", MaxModels, d.Models)
		}
		if d.Invuln != 0 && (d.Invuln < 2 || d.Invuln > 6) {
			add("defender invulnerable save must be 2+ to 6+, got %d", d.Invuln)
		}
		if d.FNP != 0 && (d.FNP < 2 || d.FNP > 6) {
			add("defender feel no pain must be 2+ to 6+, got %d", d.FNP)
		}
	}

	for _, id := range cfg.Toggles.IDs() {
		if !rules.Known(id) {
			add("unknown toggle %q", id)
			continue
		}
		if n, ok := id.Value(); ok && n > MaxRuleValue {
			add("toggle %s exceeds %d", id, MaxRuleValue)
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func sortedIDs(weapons map[string]game.WeaponProfile) []string {
	ids := make([]string, 0, len(weapons))
	for id := range weapons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package game

import (
	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// NoSave is the save target when no save can be taken.
const NoSave = 7

// WoundTarget returns the roll (2-6) needed to wound.
func WoundTarget(S, T int) int {
	switch {
	case S >= 2*T:
		return 2
	case S > T:
		return 3
	case S == T:
		return 4
	case S*2 <= T:
		return 6
	default:
		return 5
	}
}

// SaveTarget returns the save a defender takes: the better of the modified
// armour save and the invulnerable save. mod applies to armour only and is
// capped at one step either way. NoSave means the wound cannot be saved.
func SaveTarget(save, ap, invuln, mod int) int {
	if ap < 0 {
		ap = -ap
	}
	mod = max(-1, min(1, mod))
	// cover never improves a 3+ or better save against AP 0
	if mod > 0 && ap == 0 && save <= 3 {
		mod = 0
	}
	armour := NoSave
	if save >= 2 && save <= 6 {
		armour = save + ap - mod
		if armour < 2 {
			armour = 2
		}
		if armour > 6 {
			armour = NoSave
		}
	}
	if invuln >= 2 && invuln <= 6 && invuln < armour {
		return invuln
	}
	return armour
}

// check is one kind of D6 test: hit, wound or save.
type check struct {
	target       int
	mod          int
	critOn       int
	rerollOnes   bool
	rerollFailed bool
}

// passes judges a natural roll. A natural 1 always fails and a critical
// always succeeds; otherwise the modified roll, kept within 1..6, must meet
// the target.
func (c check) passes(nat int) bool {
	if nat == 1 {
		return false
	}
	if nat >= c.critOn {
		return true
	}
	return max(1, min(6, nat+c.mod)) >= c.target
}

// roll makes the test, re-rolling a die at most once. Reroll-failed covers
// every failure, so it supersedes reroll-ones for the same die.
func (c check) roll(r *engine.Roller) (nat int, ok bool) {
	nat = r.D6()
	ok = c.passes(nat)
	if !ok && (c.rerollFailed || (c.rerollOnes && nat == 1)) {
		nat = r.D6()
		ok = c.passes(nat)
	}
	return nat, ok
}

// Resolve runs one assignment through the pipeline once:
// attacks, hit, wound, save, feel-no-pain, damage. Each stage only sees the
// previous stage's successes.
func Resolve(r *engine.Roller, a AttackerAssignment, w WeaponProfile, d DefenderProfile, m rules.Modifiers, phase Phase) Tally {
	t := Tally{WeaponID: w.ID}
	if a.Attacks <= 0 {
		return t
	}

	// Attacks
	attacks := a.Attacks
	if phase == PhaseShooting {
		attacks += m.Attacks.RapidFire * a.Models()
		if m.Attacks.Blast {
			attacks += d.Models / 5
		}
	}
	t.Attacks = attacks

	// Hit
	hits, autoWounds := 0, 0
	if m.Attacks.Torrent {
		hits = attacks
	} else {
		hc := check{
			target:       w.Skill,
			mod:          m.Hit.Modifier,
			critOn:       critThreshold(m.Hit.CritOn),
			rerollOnes:   m.Hit.RerollOnes,
			rerollFailed: m.Hit.RerollFailed,
		}
		for i := 0; i < attacks; i++ {
			nat, ok := hc.roll(r)
			if !ok {
				continue
			}
			hits++
			if nat < hc.critOn {
				continue
			}
			// bonus hits roll to wound like any other hit
			hits += m.Hit.Sustained
			if m.Hit.Lethal {
				autoWounds++
			}
		}
	}
	t.Hits = hits

	// Wound
	wc := check{
		target:       WoundTarget(w.Strength, d.Toughness),
		mod:          m.Wound.Modifier,
		critOn:       critThreshold(m.Wound.CritOn),
		rerollOnes:   m.Wound.RerollOnes,
		rerollFailed: m.Wound.RerollFailed,
	}
	wounds, mortals := autoWounds, 0
	for i := 0; i < hits-autoWounds; i++ {
		nat, ok := wc.roll(r)
		if !ok {
			continue
		}
		if m.Wound.Devastating && nat >= wc.critOn {
			mortals++
			continue
		}
		wounds++
	}
	t.Wounds = wounds + mortals
	t.Mortals = mortals

	// Save
	target := SaveTarget(d.Save, w.AP, m.Save.Invuln, m.Save.Modifier)
	if target >= NoSave {
		t.FailedSaves = wounds
	} else {
		sc := check{target: target, critOn: NoSave}
		for i := 0; i < wounds; i++ {
			if _, ok := sc.roll(r); !ok {
				t.FailedSaves++
			}
		}
	}

	// Feel no pain, then damage
	for i := 0; i < t.FailedSaves+mortals; i++ {
		if m.Damage.FNP > 0 && r.D6() >= m.Damage.FNP {
			t.FeltNoPain++
			continue
		}
		t.Damage += applyDamage(r.RollExpr(w.Damage), m.Damage)
	}
	return t
}

// applyDamage adds melta to a damage roll and then applies damage
// reduction, which never takes a roll above 1 below 1.
func applyDamage(roll int, m rules.DamageMods) int {
	dmg := roll + m.Melta
	if m.Reduction > 0 && dmg > 1 {
		dmg = max(1, dmg-m.Reduction)
	}
	return dmg
}

// MeanDamage is the expected damage of one unsaved wound from a weapon
// dealing e, before feel no pain.
func MeanDamage(e engine.Expr, m rules.DamageMods) float64 {
	mean := 0.0
	for _, o := range e.Outcomes() {
		mean += o.P * float64(applyDamage(o.Value, m))
	}
	return mean
}

func critThreshold(n int) int {
	if n < 2 || n > 6 {
		return 6
	}
	return n
}

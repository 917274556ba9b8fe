package game

import (
	"fmt"
	"strings"

	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// Phase is the battle phase an attack is made in.
type Phase string

const (
	PhaseShooting Phase = "shooting"
	PhaseFight    Phase = "fight"
)

// ParsePhase accepts "shooting"/"fight" (and "melee" as an alias for fight).
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shooting", "shoot", "ranged":
		return PhaseShooting, nil
	case "fight", "melee":
		return PhaseFight, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// WeaponKind separates ranged from melee profiles.
type WeaponKind string

const (
	KindRanged WeaponKind = "ranged"
	KindMelee  WeaponKind = "melee"
)

// WeaponProfile is an immutable weapon statline.
type WeaponProfile struct {
	ID       string
	Name     string
	Kind     WeaponKind
	Skill    int // hit threshold (2-6)
	Strength int
	AP       int // as printed: 0, -1, -2...
	Damage   engine.Expr
	Rules    rules.Set
}

// AttackerAssignment is one weapon fired (or swung) by a group of models.
// Attacks is the total number of attacks for the assignment.
type AttackerAssignment struct {
	UnitID   string
	WeaponID string
	ModelIDs []string
	Attacks  int
}

// Models is the number of models in the assignment, at least 1.
func (a AttackerAssignment) Models() int {
	if len(a.ModelIDs) == 0 {
		return 1
	}
	return len(a.ModelIDs)
}

// DefenderProfile is the target unit's defensive statline.
type DefenderProfile struct {
	UnitID    string
	Name      string
	Toughness int
	Save      int // armour save (2-6; 7 means none)
	Wounds    int // per model
	Models    int
	Invuln    int // 0 if none
	FNP       int // 0 if none
	Keywords  []string
}

// TotalWounds is wounds per model times model count.
func (d DefenderProfile) TotalWounds() int { return d.Wounds * d.Models }

// Target is the view of the defender the modifier engine needs.
func (d DefenderProfile) Target() rules.Target {
	return rules.Target{Models: d.Models, Keywords: d.Keywords, Invuln: d.Invuln, FNP: d.FNP}
}

// Tally counts one weapon's pipeline outcomes.
type Tally struct {
	WeaponID    string `json:"weapon_id"`
	Attacks     int    `json:"attacks"`
	Hits        int    `json:"hits"`
	Wounds      int    `json:"wounds"`
	FailedSaves int    `json:"failed_saves"`
	Damage      int    `json:"damage"`
	Mortals     int    `json:"mortal_wounds"`
	FeltNoPain  int    `json:"felt_no_pain"`
}

// Add accumulates o into t, keeping t's weapon ID.
func (t *Tally) Add(o Tally) {
	t.Attacks += o.Attacks
	t.Hits += o.Hits
	t.Wounds += o.Wounds
	t.FailedSaves += o.FailedSaves
	t.Damage += o.Damage
	t.Mortals += o.Mortals
	t.FeltNoPain += o.FeltNoPain
}

// TrialRecord is the outcome of one simulated combat. Weapons holds one
// tally per distinct weapon ID in first-seen order.
type TrialRecord struct {
	Attacks     int     `json:"attacks"`
	Hits        int     `json:"hits"`
	Wounds      int     `json:"wounds"`
	FailedSaves int     `json:"failed_saves"`
	Damage      int     `json:"damage"`
	Weapons     []Tally `json:"weapons"`
}

// Weapon returns the breakdown for id.
func (r TrialRecord) Weapon(id string) (Tally, bool) {
	for _, t := range r.Weapons {
		if t.WeaponID == id {
			return t, true
		}
	}
	return Tally{}, false
}

// Record appends a weapon tally and folds it into the totals.
func (r *TrialRecord) Record(t Tally) {
	r.Attacks += t.Attacks
	r.Hits += t.Hits
	r.Wounds += t.Wounds
	r.FailedSaves += t.FailedSaves
	r.Damage += t.Damage
	for i := range r.Weapons {
		if r.Weapons[i].WeaponID == t.WeaponID {
			r.Weapons[i].Add(t)
			return
		}
	}
	r.Weapons = append(r.Weapons, t)
}

package rules

import "strings"

// Stage is one step of the dice pipeline.
type Stage int

const (
	StageNone Stage = iota
	StageAttacks
	StageHit
	StageWound
	StageSave
	StageDamage
)

func (s Stage) String() string {
	switch s {
	case StageAttacks:
		return "attacks"
	case StageHit:
		return "hit"
	case StageWound:
		return "wound"
	case StageSave:
		return "save"
	case StageDamage:
		return "damage"
	default:
		return "none"
	}
}

// stageOf maps a rule family to the stage it modifies. Families absent from
// the table are unknown and ignored everywhere.
var stageOf = map[RuleID]Stage{
	RapidFire:          StageAttacks,
	Blast:              StageAttacks,
	Torrent:            StageAttacks,
	HalfRange:          StageAttacks,
	HitPlus1:           StageHit,
	HitMinus1:          StageHit,
	RerollHitsOnes:     StageHit,
	RerollHitsFailed:   StageHit,
	SustainedHits:      StageHit,
	LethalHits:         StageHit,
	Heavy:              StageHit,
	RemainedStationary: StageHit,
	"crit_hits":        StageHit,
	WoundPlus1:         StageWound,
	WoundMinus1:        StageWound,
	RerollWoundsOnes:   StageWound,
	RerollWoundsFailed: StageWound,
	TwinLinked:         StageWound,
	DevastatingWounds:  StageWound,
	"anti":             StageWound,
	SavePlus1:          StageSave,
	SaveMinus1:         StageSave,
	IgnoresCover:       StageSave,
	"invuln":           StageSave,
	"fnp":              StageDamage,
	meltaActive:        StageDamage,
	DamageMinus1:       StageDamage,
	Precision:          StageNone,
	Pistol:             StageNone,
	Assault:            StageNone,
	Hazardous:          StageNone,
	IndirectFire:       StageNone,
	Lance:              StageNone,
}

// StageRules returns the subset of set relevant to stage. Unknown IDs never
// appear in any subset.
func StageRules(set Set, stage Stage) Set {
	out := Set{}
	for id, on := range set {
		if !on {
			continue
		}
		if st, ok := stageOf[id.family()]; ok && st == stage {
			out[id] = true
		}
	}
	return out
}

// Target is what the modifier engine needs to know about the defender.
type Target struct {
	Models   int
	Keywords []string
	Invuln   int
	FNP      int
}

// HasKeyword matches kw against the target's keywords, ignoring case and
// treating hyphens as spaces.
func (t Target) HasKeyword(kw string) bool {
	kw = strings.ReplaceAll(strings.ToLower(kw), "-", " ")
	for _, k := range t.Keywords {
		if strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "-", " ") == kw {
			return true
		}
	}
	return false
}

// AttackMods alter the number of attacks.
type AttackMods struct {
	RapidFire int // bonus attacks per model, shooting only
	Blast     bool
	Torrent   bool
}

// HitMods alter hit rolls.
type HitMods struct {
	Modifier     int // net, within [-1, +1]
	RerollOnes   bool
	RerollFailed bool
	CritOn       int // natural roll that counts as a critical hit
	Sustained    int // bonus hits per critical hit
	Lethal       bool
}

// WoundMods alter wound rolls.
type WoundMods struct {
	Modifier     int
	RerollOnes   bool
	RerollFailed bool
	CritOn       int // lowered by anti-X
	Devastating  bool
}

// SaveMods alter saving throws.
type SaveMods struct {
	Modifier int // armour path only, within [-1, +1]
	Invuln   int
}

// DamageMods alter damage and post-save rolls.
type DamageMods struct {
	FNP       int
	Melta     int
	Reduction int
}

// Modifiers is the per-stage projection consumed by the trial resolver.
type Modifiers struct {
	Attacks AttackMods
	Hit     HitMods
	Wound   WoundMods
	Save    SaveMods
	Damage  DamageMods
}

// Resolve combines a weapon's own rules with the player's toggles for one
// attack against target. Rules printed on a weapon that depend on battlefield
// state (rapid fire, melta, heavy) need the matching toggle.
func Resolve(weapon, toggles Set, target Target) Modifiers {
	all := weapon.Merge(toggles)
	var m Modifiers

	atk := StageRules(all, StageAttacks)
	m.Attacks.Torrent = atk.Has(Torrent)
	m.Attacks.Blast = atk.Has(Blast)
	m.Attacks.RapidFire = rangeBonus(weapon, toggles, RapidFire, prefixRapidFire)

	hit := StageRules(all, StageHit)
	m.Hit.Modifier = net(hit.Has(HitPlus1), hit.Has(HitMinus1))
	if hit.Has(Heavy) && hit.Has(RemainedStationary) && m.Hit.Modifier < 1 {
		m.Hit.Modifier++
	}
	m.Hit.RerollOnes = hit.Has(RerollHitsOnes)
	m.Hit.RerollFailed = hit.Has(RerollHitsFailed)
	m.Hit.CritOn = 6
	if n := hit.best(prefixCritHits); n > 0 {
		m.Hit.CritOn = n
	}
	m.Hit.Sustained = hit.largest(SustainedHits, prefixSustained)
	m.Hit.Lethal = hit.Has(LethalHits)

	wnd := StageRules(all, StageWound)
	m.Wound.Modifier = net(wnd.Has(WoundPlus1), wnd.Has(WoundMinus1))
	m.Wound.RerollOnes = wnd.Has(RerollWoundsOnes)
	m.Wound.RerollFailed = wnd.Has(RerollWoundsFailed) || wnd.Has(TwinLinked)
	m.Wound.Devastating = wnd.Has(DevastatingWounds)
	m.Wound.CritOn = 6
	for id := range wnd {
		kw, n, ok := id.AntiParts()
		if ok && n < m.Wound.CritOn && target.HasKeyword(kw) {
			m.Wound.CritOn = n
		}
	}

	sv := StageRules(all, StageSave)
	cover := sv.Has(SavePlus1) && !sv.Has(IgnoresCover)
	m.Save.Modifier = net(cover, sv.Has(SaveMinus1))
	m.Save.Invuln = ResolveInvuln(target.Invuln, sv)

	dmg := StageRules(all, StageDamage)
	m.Damage.FNP = ResolveFNP(target.FNP, dmg)
	m.Damage.Melta = rangeBonus(weapon, toggles, meltaActive, prefixMelta)
	if dmg.Has(DamageMinus1) {
		m.Damage.Reduction = 1
	}
	return m
}

// rangeBonus is the value of a half-range rule such as rapid fire or melta.
// The weapon's own value applies once half_range or the bare rule is
// toggled; a numbered toggle (rapid_fire_3) replaces it outright.
func rangeBonus(weapon, toggles Set, bare RuleID, prefix string) int {
	if n := toggles.valued(prefix); n > 0 {
		return n
	}
	if toggles.Has(HalfRange) || toggles.Has(bare) {
		return weapon.largest(bare, prefix)
	}
	return 0
}

// net folds plus/minus toggles into a single step; they never stack past one.
func net(plus, minus bool) int {
	switch {
	case plus && !minus:
		return 1
	case minus && !plus:
		return -1
	}
	return 0
}

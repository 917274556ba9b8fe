// Package rules turns special-rule text and player toggles into the
// modifiers each stage of the dice pipeline consumes.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RuleID names one special rule. Parameterised rules carry their value in
// the ID itself, e.g. "sustained_hits_2", "anti_infantry_4", "fnp_5".
type RuleID string

const (
	LethalHits        RuleID = "lethal_hits"
	SustainedHits     RuleID = "sustained_hits"
	TwinLinked        RuleID = "twin_linked"
	Torrent           RuleID = "torrent"
	DevastatingWounds RuleID = "devastating_wounds"
	RapidFire         RuleID = "rapid_fire"
	Blast             RuleID = "blast"
	Heavy             RuleID = "heavy"
	IgnoresCover      RuleID = "ignores_cover"

	HitPlus1    RuleID = "hit_plus_1"
	HitMinus1   RuleID = "hit_minus_1"
	WoundPlus1  RuleID = "wound_plus_1"
	WoundMinus1 RuleID = "wound_minus_1"
	SavePlus1   RuleID = "save_plus_1"
	SaveMinus1  RuleID = "save_minus_1"

	RerollHitsOnes     RuleID = "reroll_hits_ones"
	RerollHitsFailed   RuleID = "reroll_hits_failed"
	RerollWoundsOnes   RuleID = "reroll_wounds_ones"
	RerollWoundsFailed RuleID = "reroll_wounds_failed"

	DamageMinus1       RuleID = "damage_minus_1"
	HalfRange          RuleID = "half_range"
	RemainedStationary RuleID = "remained_stationary"

	// Recognised so they parse cleanly; no pipeline effect.
	Precision    RuleID = "precision"
	Pistol       RuleID = "pistol"
	Assault      RuleID = "assault"
	Hazardous    RuleID = "hazardous"
	IndirectFire RuleID = "indirect_fire"
	Lance        RuleID = "lance"
)

// meltaActive is the bare melta toggle. Weapons always carry melta with a
// value, so the bare ID only switches the weapon's bonus on.
const meltaActive RuleID = "melta"

// Families whose value lives in the ID suffix.
const (
	prefixSustained = "sustained_hits_"
	prefixRapidFire = "rapid_fire_"
	prefixMelta     = "melta_"
	prefixAnti      = "anti_"
	prefixInvuln    = "invuln_"
	prefixFNP       = "fnp_"
	prefixCritHits  = "crit_hits_"
)

func SustainedHitsN(n int) RuleID { return RuleID(prefixSustained + strconv.Itoa(n)) }
func RapidFireN(n int) RuleID     { return RuleID(prefixRapidFire + strconv.Itoa(n)) }
func Melta(n int) RuleID          { return RuleID(prefixMelta + strconv.Itoa(n)) }
func Invuln(n int) RuleID         { return RuleID(prefixInvuln + strconv.Itoa(n)) }
func FNP(n int) RuleID            { return RuleID(prefixFNP + strconv.Itoa(n)) }
func CritHits(n int) RuleID       { return RuleID(prefixCritHits + strconv.Itoa(n)) }

// Anti builds "anti_<keyword>_N". Keywords are lower-cased and spaces become
// hyphens so the ID stays a single token.
func Anti(keyword string, n int) RuleID {
	kw := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(keyword)), " ", "-")
	return RuleID(fmt.Sprintf("%s%s_%d", prefixAnti, kw, n))
}

// Value returns the numeric suffix of a parameterised ID.
func (id RuleID) Value() (int, bool) {
	s := string(id)
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// AntiParts splits "anti_<keyword>_N".
func (id RuleID) AntiParts() (keyword string, n int, ok bool) {
	s := string(id)
	if !strings.HasPrefix(s, prefixAnti) {
		return "", 0, false
	}
	rest := s[len(prefixAnti):]
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[i+1:])
	if err != nil || !validThreshold(n) {
		return "", 0, false
	}
	return rest[:i], n, true
}

// family returns the ID with any numeric/keyword suffix stripped, so that
// "sustained_hits_2" and "sustained_hits" both report SustainedHits.
func (id RuleID) family() RuleID {
	s := string(id)
	switch {
	case strings.HasPrefix(s, prefixAnti):
		if _, _, ok := id.AntiParts(); ok {
			return "anti"
		}
		return ""
	case strings.HasPrefix(s, prefixSustained):
		return SustainedHits
	case strings.HasPrefix(s, prefixRapidFire):
		return RapidFire
	case strings.HasPrefix(s, prefixMelta):
		return meltaActive
	case strings.HasPrefix(s, prefixInvuln):
		return "invuln"
	case strings.HasPrefix(s, prefixFNP):
		return "fnp"
	case strings.HasPrefix(s, prefixCritHits):
		return "crit_hits"
	}
	return id
}

// Set is a bag of active rules. It doubles as the player's toggle set.
type Set map[RuleID]bool

// NewSet builds a set from ids.
func NewSet(ids ...RuleID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s Set) Has(id RuleID) bool { return s[id] }

// Merge returns a new set holding the active rules of s and others.
func (s Set) Merge(others ...Set) Set {
	out := make(Set, len(s))
	for id, on := range s {
		if on {
			out[id] = true
		}
	}
	for _, o := range others {
		for id, on := range o {
			if on {
				out[id] = true
			}
		}
	}
	return out
}

// IDs lists the active rules in sorted order.
func (s Set) IDs() []RuleID {
	out := make([]RuleID, 0, len(s))
	for id, on := range s {
		if on {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings is IDs as plain strings, for JSON and YAML.
func (s Set) Strings() []string {
	ids := s.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// FromStrings builds a set from raw toggle names. Blank names are skipped.
func FromStrings(names []string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			s[RuleID(n)] = true
		}
	}
	return s
}

// Known reports whether this engine version implements id.
func Known(id RuleID) bool {
	_, ok := stageOf[id.family()]
	return ok
}

// best returns the lowest valid threshold among ids of one family, or 0.
func (s Set) best(prefix string) int {
	best := 0
	for id, on := range s {
		if !on || !strings.HasPrefix(string(id), prefix) {
			continue
		}
		n, ok := id.Value()
		if !ok || !validThreshold(n) {
			continue
		}
		if best == 0 || n < best {
			best = n
		}
	}
	return best
}

// largest returns the biggest positive value of a family; bare IDs count as 1.
func (s Set) largest(bare RuleID, prefix string) int {
	v := 0
	if s[bare] {
		v = 1
	}
	for id, on := range s {
		if !on || !strings.HasPrefix(string(id), prefix) {
			continue
		}
		if n, ok := id.Value(); ok && n > v {
			v = n
		}
	}
	return v
}

// valued returns the biggest numbered value of a family, ignoring the bare ID.
func (s Set) valued(prefix string) int {
	return s.largest("", prefix)
}

// ResolveInvuln picks the strictest invulnerable save between the unit's own
// value and any toggled invuln_N. 0 means none.
func ResolveInvuln(base int, toggles Set) int {
	return strictest(base, toggles.best(prefixInvuln))
}

// ResolveFNP picks the strictest feel-no-pain threshold. 0 means none.
func ResolveFNP(base int, toggles Set) int {
	return strictest(base, toggles.best(prefixFNP))
}

func strictest(a, b int) int {
	if !validThreshold(a) {
		a = 0
	}
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case b < a:
		return b
	}
	return a
}

func validThreshold(n int) bool { return n >= 2 && n <= 6 }

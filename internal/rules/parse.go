package rules

import (
	"regexp"
	"strconv"
	"strings"
)

// phrases maps normalised ability text to a rule. Matching is exact on the
// whole token after normalisation; anything else is ignored.
var phrases = map[string]RuleID{
	"lethal hits":        LethalHits,
	"twin-linked":        TwinLinked,
	"twin linked":        TwinLinked,
	"torrent":            Torrent,
	"devastating wounds": DevastatingWounds,
	"blast":              Blast,
	"heavy":              Heavy,
	"ignores cover":      IgnoresCover,
	"precision":          Precision,
	"pistol":             Pistol,
	"assault":            Assault,
	"hazardous":          Hazardous,
	"indirect fire":      IndirectFire,
	"lance":              Lance,
	"sustained hits":     SustainedHits,
	"rapid fire":         RapidFire,

	"re-roll hit rolls of 1":   RerollHitsOnes,
	"reroll hit rolls of 1":    RerollHitsOnes,
	"re-roll hit rolls":        RerollHitsFailed,
	"reroll hit rolls":         RerollHitsFailed,
	"re-roll wound rolls of 1": RerollWoundsOnes,
	"reroll wound rolls of 1":  RerollWoundsOnes,
	"re-roll wound rolls":      RerollWoundsFailed,
	"reroll wound rolls":       RerollWoundsFailed,

	"+1 to hit":        HitPlus1,
	"-1 to hit":        HitMinus1,
	"+1 to wound":      WoundPlus1,
	"-1 to wound":      WoundMinus1,
	"-1 damage":        DamageMinus1,
	"benefit of cover": SavePlus1,
}

var (
	sustainedRe = regexp.MustCompile(`^sustained hits\s+(\d+)$`)
	rapidFireRe = regexp.MustCompile(`^rapid fire\s+(\d+)$`)
	meltaRe     = regexp.MustCompile(`^melta\s+(\d+)$`)
	antiRe      = regexp.MustCompile(`^anti-\s*([a-z][a-z \-]*?)\s*\(?\s*([2-6])\+\s*\)?$`)
	fnpRe       = regexp.MustCompile(`^(?:feel no pain|fnp)\s*\(?\s*([2-6])\+\s*\)?$`)
	invulnRe    = regexp.MustCompile(`^(?:invulnerable save|invuln(?:erable)?)\s*\(?\s*([2-6])\+\s*\)?$`)
	critHitRe   = regexp.MustCompile(`^critical hits? on\s+([2-6])\+$`)
)

// ParseSpecialRules tokenises ability text such as
// "Lethal Hits, Sustained Hits 2, Anti-Infantry 4+" into known rules.
// Unrecognised tokens are dropped.
func ParseSpecialRules(text string) Set {
	out := Set{}
	for _, tok := range splitTokens(text) {
		if id, ok := parseToken(tok); ok {
			out[id] = true
		}
	}
	return out
}

func splitTokens(text string) []string {
	text = strings.NewReplacer("[", ",", "]", ",", ";", ",", "\n", ",").Replace(text)
	parts := strings.Split(text, ",")
	out := parts[:0]
	for _, p := range parts {
		p = normalise(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalise(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("‑", "-", "–", "-", "’", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func parseToken(tok string) (RuleID, bool) {
	if id, ok := phrases[tok]; ok {
		return id, true
	}
	if m := sustainedRe.FindStringSubmatch(tok); m != nil {
		return SustainedHitsN(atoi(m[1])), true
	}
	if m := rapidFireRe.FindStringSubmatch(tok); m != nil {
		return RapidFireN(atoi(m[1])), true
	}
	if m := meltaRe.FindStringSubmatch(tok); m != nil {
		return Melta(atoi(m[1])), true
	}
	if m := antiRe.FindStringSubmatch(tok); m != nil {
		return Anti(m[1], atoi(m[2])), true
	}
	if m := fnpRe.FindStringSubmatch(tok); m != nil {
		return FNP(atoi(m[1])), true
	}
	if m := invulnRe.FindStringSubmatch(tok); m != nil {
		return Invuln(atoi(m[1])), true
	}
	if m := critHitRe.FindStringSubmatch(tok); m != nil {
		return CritHits(atoi(m[1])), true
	}
	return "", false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

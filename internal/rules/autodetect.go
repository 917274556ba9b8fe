package rules

import "strings"

// AutoDetect derives defender rules from live unit data: the datasheet's
// invulnerable save and any feel-no-pain or damage-reduction abilities.
// The result is merged into the toggle set before a simulation starts.
func AutoDetect(abilities []string, invuln int) Set {
	out := Set{}
	if validThreshold(invuln) {
		out[Invuln(invuln)] = true
	}
	fnp := 0
	for _, a := range abilities {
		text := strings.ToLower(a)
		if strings.Contains(text, "feel no pain") || strings.Contains(text, "fnp") {
			if n := firstThreshold(text); n > 0 && (fnp == 0 || n < fnp) {
				fnp = n
			}
		}
		if strings.Contains(text, "reduce damage by") ||
			strings.Contains(text, "damage reduction") ||
			strings.Contains(text, "-1 damage") ||
			strings.Contains(text, "subtract 1 from the damage") {
			out[DamageMinus1] = true
		}
		for id := range ParseSpecialRules(a) {
			if strings.HasPrefix(string(id), prefixInvuln) {
				out[id] = true
			}
		}
	}
	if fnp > 0 {
		out[FNP(fnp)] = true
	}
	return out
}

// firstThreshold finds the first "N+" with N in 2..6.
func firstThreshold(text string) int {
	for i := 0; i+1 < len(text); i++ {
		if text[i] >= '2' && text[i] <= '6' && text[i+1] == '+' {
			if i > 0 && text[i-1] >= '0' && text[i-1] <= '9' {
				continue
			}
			return int(text[i] - '0')
		}
	}
	return 0
}

package sim

import (
	"math"
	"sort"
	"sync"

	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// Threshold is one row of the "at least d damage" table.
type Threshold struct {
	Damage      int     `json:"damage"`
	Probability float64 `json:"probability"`
}

// WeaponSummary is the per-weapon breakdown averaged over all trials.
type WeaponSummary struct {
	WeaponID        string  `json:"weapon_id"`
	Name            string  `json:"name"`
	MeanAttacks     float64 `json:"mean_attacks"`
	MeanHits        float64 `json:"mean_hits"`
	MeanWounds      float64 `json:"mean_wounds"`
	MeanFailedSaves float64 `json:"mean_failed_saves"`
	MeanMortals     float64 `json:"mean_mortal_wounds"`
	MeanDamage      float64 `json:"mean_damage"`
	HitRate         float64 `json:"hit_rate"`
	WoundRate       float64 `json:"wound_rate"`
	UnsavedRate     float64 `json:"unsaved_rate"`
}

// Summary holds every statistic derived from a set of trial records.
type Summary struct {
	Trials            int             `json:"trials"`
	Mean              float64         `json:"mean_damage"`
	StdDev            float64         `json:"std_dev"`
	Min               int             `json:"min_damage"`
	Max               int             `json:"max_damage"`
	Median            int             `json:"median_damage"`
	P90               int             `json:"p90_damage"`
	KillProbability   float64         `json:"kill_probability"`
	ExpectedSurvivors int             `json:"expected_survivors"`
	DamageEfficiency  float64         `json:"damage_efficiency"`
	Histogram         map[int]int     `json:"histogram"`
	AtLeast           []Threshold     `json:"at_least"`
	Weapons           []WeaponSummary `json:"weapons"`

	sorted []int
}

// Percentile returns the nearest-rank percentile of total damage for p in
// [0, 1]: the value at index ceil(p*N)-1 of the sorted damages.
func (s *Summary) Percentile(p float64) int {
	n := len(s.sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(n)-1e-9)) - 1
	idx = max(0, min(n-1, idx))
	return s.sorted[idx]
}

// Result is a completed run. Statistics are computed on first use.
type Result struct {
	Seed     uint64
	Phase    game.Phase
	Defender game.DefenderProfile
	Records  []game.TrialRecord
	Weapons  map[string]game.WeaponProfile
	// PerWound is each weapon's expected damage per unsaved wound with the
	// run's melta and damage reduction applied.
	PerWound map[string]float64

	once    sync.Once
	summary *Summary
}

func newResult(records []game.TrialRecord, def game.DefenderProfile, weapons map[string]game.WeaponProfile, perWound map[string]float64) *Result {
	return &Result{Defender: def, Records: records, Weapons: weapons, PerWound: perWound}
}

// Summary returns the cached statistics.
func (r *Result) Summary() *Summary {
	r.once.Do(func() {
		r.summary = Summarize(r.Records, r.Defender, r.Weapons, r.PerWound)
	})
	return r.summary
}

func (r *Result) Trials() int                    { return len(r.Records) }
func (r *Result) Mean() float64                  { return r.Summary().Mean }
func (r *Result) StdDev() float64                { return r.Summary().StdDev }
func (r *Result) Min() int                       { return r.Summary().Min }
func (r *Result) Max() int                       { return r.Summary().Max }
func (r *Result) Histogram() map[int]int         { return r.Summary().Histogram }
func (r *Result) Percentile(p float64) int       { return r.Summary().Percentile(p) }
func (r *Result) KillProbability() float64       { return r.Summary().KillProbability }
func (r *Result) ExpectedSurvivors() int         { return r.Summary().ExpectedSurvivors }
func (r *Result) DamageEfficiency() float64      { return r.Summary().DamageEfficiency }
func (r *Result) ReverseCumulative() []Threshold { return r.Summary().AtLeast }
func (r *Result) WeaponSummaries() []WeaponSummary {
	return r.Summary().Weapons
}

// Summarize aggregates records against the defender. It depends only on the
// multiset of records, never on their order. perWound gives each weapon's
// expected damage per unsaved wound; weapons missing from it use their
// unmodified damage.
func Summarize(records []game.TrialRecord, def game.DefenderProfile, weapons map[string]game.WeaponProfile, perWound map[string]float64) *Summary {
	n := len(records)
	s := &Summary{
		Trials:    n,
		Histogram: map[int]int{},
		AtLeast:   []Threshold{},
		Weapons:   []WeaponSummary{},
		sorted:    make([]int, 0, n),
	}

	var sum, sumSq int64
	kills := 0
	total := def.TotalWounds()
	for _, rec := range records {
		d := rec.Damage
		s.Histogram[d]++
		s.sorted = append(s.sorted, d)
		sum += int64(d)
		sumSq += int64(d) * int64(d)
		if total > 0 && d >= total {
			kills++
		}
	}
	sort.Ints(s.sorted)

	if n > 0 {
		fn := float64(n)
		s.Mean = float64(sum) / fn
		if v := float64(sumSq)/fn - s.Mean*s.Mean; v > 0 {
			s.StdDev = math.Sqrt(v)
		}
		s.Min = s.sorted[0]
		s.Max = s.sorted[n-1]
		s.KillProbability = float64(kills) / fn
	}
	s.Median = s.Percentile(0.5)
	s.P90 = s.Percentile(0.9)

	s.ExpectedSurvivors = def.Models
	if def.Wounds > 0 {
		s.ExpectedSurvivors = max(0, def.Models-int(math.Floor(s.Mean/float64(def.Wounds))))
	}

	s.AtLeast = atLeast(s.sorted)
	s.Weapons = weaponSummaries(records, weapons)

	var ceiling float64
	for _, w := range s.Weapons {
		per, ok := perWound[w.WeaponID]
		if !ok {
			p, known := weapons[w.WeaponID]
			if !known {
				continue
			}
			per = game.MeanDamage(p.Damage, rules.DamageMods{})
		}
		ceiling += w.MeanAttacks * per
	}
	if ceiling > 0 {
		s.DamageEfficiency = s.Mean / ceiling
	}
	return s
}

// atLeast builds P(damage >= d) for 0 and every observed damage value.
func atLeast(sorted []int) []Threshold {
	n := len(sorted)
	if n == 0 {
		return []Threshold{{Damage: 0, Probability: 1}}
	}
	out := []Threshold{}
	if sorted[0] > 0 {
		out = append(out, Threshold{Damage: 0, Probability: 1})
	}
	for i := 0; i < n; {
		d := sorted[i]
		out = append(out, Threshold{Damage: d, Probability: float64(n-i) / float64(n)})
		for i < n && sorted[i] == d {
			i++
		}
	}
	return out
}

func weaponSummaries(records []game.TrialRecord, weapons map[string]game.WeaponProfile) []WeaponSummary {
	type acc struct{ attacks, hits, wounds, failed, mortals, damage int64 }
	order := []string{}
	sums := map[string]*acc{}
	for _, rec := range records {
		for _, t := range rec.Weapons {
			a, ok := sums[t.WeaponID]
			if !ok {
				a = &acc{}
				sums[t.WeaponID] = a
				order = append(order, t.WeaponID)
			}
			a.attacks += int64(t.Attacks)
			a.hits += int64(t.Hits)
			a.wounds += int64(t.Wounds)
			a.failed += int64(t.FailedSaves)
			a.mortals += int64(t.Mortals)
			a.damage += int64(t.Damage)
		}
	}
	// first-seen order depends on record order; sort for a stable view
	sort.Strings(order)

	rate := func(num, den int64) float64 {
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	}
	n := int64(len(records))
	out := make([]WeaponSummary, 0, len(order))
	for _, id := range order {
		a := sums[id]
		out = append(out, WeaponSummary{
			WeaponID:        id,
			Name:            weapons[id].Name,
			MeanAttacks:     rate(a.attacks, n),
			MeanHits:        rate(a.hits, n),
			MeanWounds:      rate(a.wounds, n),
			MeanFailedSaves: rate(a.failed, n),
			MeanMortals:     rate(a.mortals, n),
			MeanDamage:      rate(a.damage, n),
			HitRate:         rate(a.hits, a.attacks),
			WoundRate:       rate(a.wounds, a.hits),
			UnsavedRate:     rate(a.failed, a.wounds-a.mortals),
		})
	}
	return out
}

package sim

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/engine"
)

// Ranked is one weapon's standing in a comparison.
type Ranked struct {
	Rank       int     `json:"rank"`
	UnitID     string  `json:"unit_id"`
	WeaponID   string  `json:"weapon_id"`
	WeaponName string  `json:"weapon_name"`
	MeanDamage float64 `json:"mean_damage"`
	Result     *Result `json:"-"`
}

// Comparison ranks every assignment of a config by mean damage, highest first.
type Comparison struct {
	Seed    uint64   `json:"seed"`
	Entries []Ranked `json:"entries"`
}

// Compare simulates each attacker assignment on its own against the same
// defender. Assignments run one after another, each with its own seed
// derived from cfg.Seed. Progress counts finished assignments.
func Compare(cfg Config, opts ...Option) (*Comparison, error) {
	o := buildOptions(opts)
	if v := Validate(cfg); !v.Valid {
		return nil, &ValidationError{Errors: v.Errors}
	}
	seed := cfg.Seed
	if seed == 0 {
		s, err := engine.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("seed comparison: %w", err)
		}
		seed = s
	}

	runnable := cfg.Attackers[:0:0]
	for _, a := range cfg.Attackers {
		if a.Attacks > 0 {
			runnable = append(runnable, a)
		}
	}

	inner := []Option{WithLogger(o.log), WithSource(o.newSource)}
	cmp := &Comparison{Seed: seed, Entries: make([]Ranked, 0, len(runnable))}
	for i, a := range runnable {
		res, err := Run(cfg.single(a, splitmix(seed+uint64(i))), inner...)
		if err != nil {
			return nil, fmt.Errorf("compare weapon %q: %w", a.WeaponID, err)
		}
		cmp.Entries = append(cmp.Entries, Ranked{
			UnitID:     a.UnitID,
			WeaponID:   a.WeaponID,
			WeaponName: cfg.Weapons[a.WeaponID].Name,
			MeanDamage: res.Mean(),
			Result:     res,
		})
		o.progress(Progress{Completed: i + 1, Total: len(runnable)})
		o.log.Debug("comparison progress", zap.String("weapon", a.WeaponID), zap.Int("completed", i+1))
	}

	sort.SliceStable(cmp.Entries, func(i, j int) bool {
		return cmp.Entries[i].MeanDamage > cmp.Entries[j].MeanDamage
	})
	for i := range cmp.Entries {
		cmp.Entries[i].Rank = i + 1
	}
	return cmp, nil
}

// splitmix scrambles x so neighbouring seeds give unrelated streams.
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	if x == 0 {
		x = 1
	}
	return x
}

package sim

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

type sixes struct{}

func (sixes) IntN(n int) int { return n - 1 }

func allSixes(uint64) engine.Source { return sixes{} }

func bolter() game.WeaponProfile {
	return game.WeaponProfile{ID: "bolter", Name: "Bolt rifle", Kind: game.KindRanged, Skill: 3, Strength: 4, Damage: engine.Flat(1), Rules: rules.Set{}}
}

func baseConfig(trials int) Config {
	return Config{
		Trials:    trials,
		Phase:     game.PhaseShooting,
		Attackers: []game.AttackerAssignment{{UnitID: "att", WeaponID: "bolter", Attacks: 10}},
		Weapons:   map[string]game.WeaponProfile{"bolter": bolter()},
		Defender:  &game.DefenderProfile{UnitID: "def", Name: "Intercessors", Toughness: 4, Save: 3, Wounds: 2, Models: 5},
		Seed:      42,
	}
}

func intp(n int) *int { return &n }

func TestValidate(t *testing.T) {
	v := Validate(Config{})
	if v.Valid {
		t.Fatal("empty config should be invalid")
	}
	for _, want := range []string{"trial count", "no attackers", "no defender"} {
		found := false
		for _, e := range v.Errors {
			if strings.Contains(e, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing error containing %q in %v", want, v.Errors)
		}
	}

	if v := Validate(baseConfig(100)); !v.Valid || len(v.Errors) != 0 {
		t.Fatalf("base config invalid: %v", v.Errors)
	}

	cfg := baseConfig(100)
	cfg.Defender.UnitID = "att"
	if v := Validate(cfg); v.Valid {
		t.Fatal("defender listed as attacker should be invalid")
	}

	cfg = baseConfig(MaxTrials + 1)
	if v := Validate(cfg); v.Valid {
		t.Fatal("too many trials should be invalid")
	}

	cfg = baseConfig(100)
	cfg.Attackers[0].Attacks = 0
	if v := Validate(cfg); v.Valid {
		t.Fatal("zero attacks should be invalid")
	}

	cfg = baseConfig(100)
	cfg.Attackers[0].WeaponID = "missing"
	if v := Validate(cfg); v.Valid {
		t.Fatal("unknown weapon should be invalid")
	}

	cfg = baseConfig(100)
	cfg.Override.Save = intp(9)
	if v := Validate(cfg); v.Valid {
		t.Fatal("override save 9 should be invalid")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig(0)
	_, err := Run(cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) == 0 {
		t.Fatalf("expected *ValidationError with messages, got %v", err)
	}
}

func TestRunHistogramCoversEveryTrial(t *testing.T) {
	res, err := Run(baseConfig(2000))
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, c := range res.Histogram() {
		total += c
	}
	if total != 2000 || res.Trials() != 2000 {
		t.Fatalf("histogram counts %d trials, result has %d, want 2000", total, res.Trials())
	}
}

func TestRunExpectedDamage(t *testing.T) {
	tcs := []struct {
		name string
		edit func(*Config)
		want float64
	}{
		// 10 x 2/3 x 1/2 x 1/3
		{"baseline 3+ save", func(*Config) {}, 10.0 / 9},
		// 10 x 2/3 x 1/2 x 2/3
		{"5+ save", func(c *Config) { c.Override.Save = intp(5) }, 20.0 / 9},
		// 10 x (1/2 x 1/2 + 1/6) x 1/3
		{"lethal hits", func(c *Config) {
			w := bolter()
			w.Rules = rules.NewSet(rules.LethalHits)
			c.Weapons["bolter"] = w
		}, 10 * (0.25 + 1.0/6) / 3},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(MaxTrials)
			tc.edit(&cfg)
			res, err := Run(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(res.Mean()-tc.want) > 0.03 {
				t.Fatalf("mean damage = %.3f, want %.3f", res.Mean(), tc.want)
			}
		})
	}
}

func TestRunKillsUnitOnAllSixes(t *testing.T) {
	cfg := baseConfig(500)
	cfg.Override.Save = intp(game.NoSave)
	res, err := Run(cfg, WithSource(allSixes))
	if err != nil {
		t.Fatal(err)
	}
	if res.Min() != 10 || res.Max() != 10 {
		t.Fatalf("damage range = %d..%d, want 10..10", res.Min(), res.Max())
	}
	if res.KillProbability() != 1 {
		t.Fatalf("kill probability = %v, want 1", res.KillProbability())
	}
	if res.ExpectedSurvivors() != 0 {
		t.Fatalf("expected survivors = %d, want 0", res.ExpectedSurvivors())
	}
	if res.DamageEfficiency() != 1 {
		t.Fatalf("damage efficiency = %v, want 1", res.DamageEfficiency())
	}
	if res.StdDev() != 0 {
		t.Fatalf("std dev = %v, want 0", res.StdDev())
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	a, err := Run(baseConfig(1000))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(baseConfig(1000))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Histogram(), b.Histogram()) {
		t.Fatal("same seed produced different histograms")
	}
}

func TestRunReportsProgress(t *testing.T) {
	var got []Progress
	_, err := Run(baseConfig(1000), WithProgress(func(p Progress) { got = append(got, p) }))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d progress updates, want 100", len(got))
	}
	last := got[len(got)-1]
	if last.Completed != 1000 || last.Total != 1000 || last.Fraction() != 1 {
		t.Fatalf("last progress = %+v", last)
	}
}

func TestRunTorrentBreakdown(t *testing.T) {
	cfg := baseConfig(1000)
	w := game.WeaponProfile{ID: "flamer", Name: "Flamer", Kind: game.KindRanged, Strength: 4, Damage: engine.Flat(1), Rules: rules.NewSet(rules.Torrent)}
	cfg.Weapons["flamer"] = w
	cfg.Attackers = append(cfg.Attackers, game.AttackerAssignment{UnitID: "att", WeaponID: "flamer", Attacks: 6})
	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ws := res.WeaponSummaries()
	if len(ws) != 2 {
		t.Fatalf("got %d weapon summaries, want 2", len(ws))
	}
	for _, s := range ws {
		switch s.WeaponID {
		case "flamer":
			if s.HitRate != 1 || s.MeanAttacks != 6 {
				t.Fatalf("flamer summary = %+v", s)
			}
		case "bolter":
			if s.HitRate >= 1 || s.HitRate < 0.6 {
				t.Fatalf("bolter hit rate = %v", s.HitRate)
			}
		default:
			t.Fatalf("unexpected weapon %q", s.WeaponID)
		}
	}
}

func TestPercentileNearestRank(t *testing.T) {
	records := make([]game.TrialRecord, 100)
	for i := range records {
		records[i].Damage = i + 1
	}
	s := Summarize(records, game.DefenderProfile{Wounds: 1, Models: 1}, nil, nil)
	tcs := []struct {
		p    float64
		want int
	}{{0, 1}, {0.01, 1}, {0.5, 50}, {0.9, 90}, {0.95, 95}, {1, 100}}
	for _, tc := range tcs {
		if got := s.Percentile(tc.p); got != tc.want {
			t.Errorf("Percentile(%v) = %d, want %d", tc.p, got, tc.want)
		}
	}

	empty := Summarize(nil, game.DefenderProfile{}, nil, nil)
	if empty.Percentile(0.5) != 0 || empty.Mean != 0 || empty.KillProbability != 0 {
		t.Fatalf("empty summary = %+v", empty)
	}
	if len(empty.AtLeast) != 1 || empty.AtLeast[0].Probability != 1 {
		t.Fatalf("empty at-least table = %+v", empty.AtLeast)
	}
}

func TestExpectedSurvivorsClampsAtZero(t *testing.T) {
	records := []game.TrialRecord{{Damage: 30}, {Damage: 30}}
	s := Summarize(records, game.DefenderProfile{Wounds: 2, Models: 5}, nil, nil)
	if s.ExpectedSurvivors != 0 {
		t.Fatalf("survivors = %d, want 0", s.ExpectedSurvivors)
	}
	s = Summarize([]game.TrialRecord{{Damage: 3}}, game.DefenderProfile{Wounds: 2, Models: 5}, nil, nil)
	if s.ExpectedSurvivors != 4 {
		t.Fatalf("survivors = %d, want 4", s.ExpectedSurvivors)
	}
}

func genRecords(t *rapid.T) []game.TrialRecord {
	n := rapid.IntRange(1, 60).Draw(t, "n")
	out := make([]game.TrialRecord, n)
	for i := range out {
		var rec game.TrialRecord
		for _, id := range []string{"a", "b"} {
			hits := rapid.IntRange(0, 10).Draw(t, "hits")
			rec.Record(game.Tally{
				WeaponID: id,
				Attacks:  10,
				Hits:     hits,
				Wounds:   hits / 2,
				Damage:   rapid.IntRange(0, 12).Draw(t, "damage"),
			})
		}
		out[i] = rec
	}
	return out
}

func TestSummarizeIgnoresOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genRecords(t)
		shuffled := rapid.Permutation(records).Draw(t, "shuffled")
		def := game.DefenderProfile{Wounds: 3, Models: 4}
		a := Summarize(records, def, nil, nil)
		b := Summarize(shuffled, def, nil, nil)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("summary changed with record order:\n%+v\n%+v", a, b)
		}
	})
}

func TestReverseCumulativeIsMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genRecords(t)
		s := Summarize(records, game.DefenderProfile{Wounds: 3, Models: 4}, nil, nil)
		if s.AtLeast[0].Damage != 0 || s.AtLeast[0].Probability != 1 {
			t.Fatalf("first row = %+v, want {0 1}", s.AtLeast[0])
		}
		for i := 1; i < len(s.AtLeast); i++ {
			prev, cur := s.AtLeast[i-1], s.AtLeast[i]
			if cur.Damage <= prev.Damage || cur.Probability > prev.Probability {
				t.Fatalf("row %d %+v after %+v", i, cur, prev)
			}
		}
		if s.KillProbability < 0 || s.KillProbability > 1 {
			t.Fatalf("kill probability %v out of range", s.KillProbability)
		}
		if s.Min > s.Percentile(0.5) || s.Percentile(0.5) > s.Max {
			t.Fatalf("median %d outside %d..%d", s.Percentile(0.5), s.Min, s.Max)
		}
	})
}

func TestCompareRanksByMeanDamage(t *testing.T) {
	cfg := baseConfig(2000)
	cfg.Weapons["plasma"] = game.WeaponProfile{ID: "plasma", Name: "Plasma gun", Kind: game.KindRanged, Skill: 3, Strength: 8, AP: -3, Damage: engine.Flat(2), Rules: rules.Set{}}
	cfg.Attackers = append(cfg.Attackers, game.AttackerAssignment{UnitID: "att", WeaponID: "plasma", Attacks: 10})

	var progress []Progress
	cmp, err := Compare(cfg, WithProgress(func(p Progress) { progress = append(progress, p) }))
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(cmp.Entries))
	}
	if cmp.Entries[0].WeaponID != "plasma" || cmp.Entries[0].Rank != 1 || cmp.Entries[1].Rank != 2 {
		t.Fatalf("ranking = %+v", cmp.Entries)
	}
	if cmp.Entries[0].MeanDamage < cmp.Entries[1].MeanDamage {
		t.Fatal("entries not sorted by mean damage")
	}
	if len(progress) != 2 || progress[1] != (Progress{Completed: 2, Total: 2}) {
		t.Fatalf("progress = %+v", progress)
	}
}

func TestWorkerRunsJobsInOrder(t *testing.T) {
	w := NewWorker(nil)
	first := w.Run(baseConfig(5000))
	second := w.Run(baseConfig(100))

	select {
	case <-first.Done():
	default:
		t.Fatal("second job started before the first finished")
	}

	last := 0
	for p := range second.Progress() {
		if p.Completed < last {
			t.Fatalf("progress went backwards: %d after %d", p.Completed, last)
		}
		last = p.Completed
	}
	res, err := second.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if res.Trials() != 100 {
		t.Fatalf("trials = %d, want 100", res.Trials())
	}
}

func TestWorkerKeepsFinalProgressForSlowReader(t *testing.T) {
	job := NewWorker(nil).Run(baseConfig(1000))
	if _, err := job.Wait(); err != nil {
		t.Fatal(err)
	}

	// nothing was read while the job ran, so the buffer overflowed
	var got []Progress
	for p := range job.Progress() {
		got = append(got, p)
	}
	if len(got) == 0 || len(got) > 16 {
		t.Fatalf("buffered %d updates", len(got))
	}
	if last := got[len(got)-1]; last.Completed != 1000 || last.Total != 1000 {
		t.Fatalf("last update = %+v, want 1000/1000", last)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Completed <= got[i-1].Completed {
			t.Fatalf("updates out of order: %+v", got)
		}
	}
}

func TestWorkerReportsValidationError(t *testing.T) {
	w := NewWorker(nil)
	_, err := w.Compare(Config{}).Wait()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateSizeLimits(t *testing.T) {
	tcs := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"attacks", func(c *Config) { c.Attackers[0].Attacks = 1 << 40 }, "attacks, at most"},
		{"attacker models", func(c *Config) { c.Attackers[0].ModelIDs = make([]string, MaxModels+1) }, "models, at most"},
		{"damage dice", func(c *Config) {
			w := c.Weapons["bolter"]
			w.Damage = engine.MustParseExpr("1000000000D6")
			c.Weapons["bolter"] = w
		}, "damage 1000000000D6 is too large"},
		{"damage sides", func(c *Config) {
			w := c.Weapons["bolter"]
			w.Damage = engine.MustParseExpr("D1000")
			c.Weapons["bolter"] = w
		}, "is too large"},
		{"sustained hits", func(c *Config) {
			w := c.Weapons["bolter"]
			w.Rules = rules.NewSet(rules.SustainedHitsN(1000))
			c.Weapons["bolter"] = w
		}, "sustained_hits_1000 exceeds"},
		{"strength", func(c *Config) {
			w := c.Weapons["bolter"]
			w.Strength = 1 << 50
			c.Weapons["bolter"] = w
		}, "strength must be 1 to"},
		{"defender models", func(c *Config) { c.Override.Models = intp(MaxModels + 1) }, "model count must be 1 to"},
		{"defender wounds", func(c *Config) { c.Override.Wounds = intp(1 << 40) }, "wounds per model must be 1 to"},
		{"toggle value", func(c *Config) { c.Toggles = rules.NewSet(rules.RapidFireN(500)) }, "toggle rapid_fire_500 exceeds"},
		{"unknown toggle", func(c *Config) { c.Toggles = rules.NewSet("quantum_shielding") }, `unknown toggle "quantum_shielding"`},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(MaxTrials)
			tc.edit(&cfg)
			v := Validate(cfg)
			if v.Valid {
				t.Fatal("expected the config to be rejected")
			}
			if !strings.Contains(strings.Join(v.Errors, "\n"), tc.want) {
				t.Fatalf("errors %v do not mention %q", v.Errors, tc.want)
			}
		})
	}

	cfg := baseConfig(100)
	cfg.Attackers[0].Attacks = MaxAttacks
	cfg.Attackers[0].ModelIDs = make([]string, MaxModels)
	cfg.Toggles = rules.NewSet(rules.HalfRange, rules.FNP(5))
	if v := Validate(cfg); !v.Valid {
		t.Fatalf("config at the limits rejected: %v", v.Errors)
	}
}

func TestDamageEfficiencyCountsMelta(t *testing.T) {
	cfg := baseConfig(20000)
	w := bolter()
	w.Damage = engine.MustParseExpr("D6")
	w.Rules = rules.NewSet(rules.Torrent, rules.Melta(2))
	cfg.Weapons["bolter"] = w
	cfg.Toggles = rules.NewSet(rules.HalfRange)
	// every attack hits and only the wound roll (2+) can fail
	cfg.Override.Toughness = intp(2)
	cfg.Override.Save = intp(game.NoSave)
	cfg.Override.Wounds = intp(100)

	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.PerWound["bolter"]; math.Abs(got-5.5) > 1e-9 {
		t.Fatalf("damage per wound = %v, want 5.5", got)
	}
	if eff := res.DamageEfficiency(); math.Abs(eff-5.0/6) > 0.02 {
		t.Fatalf("damage efficiency = %.3f, want about %.3f", eff, 5.0/6)
	}
}

package rules

import (
	"reflect"
	"testing"
)

func TestParseSpecialRules(t *testing.T) {
	tcs := []struct {
		text string
		want []RuleID
	}{
		{"Lethal Hits, Twin-linked", []RuleID{LethalHits, TwinLinked}},
		{"[SUSTAINED HITS 2], [DEVASTATING WOUNDS]", []RuleID{DevastatingWounds, SustainedHitsN(2)}},
		{"Anti-Infantry 4+, Torrent", []RuleID{"anti_infantry_4", Torrent}},
		{"anti-vehicle (2+); melta 2", []RuleID{"anti_vehicle_2", "melta_2"}},
		{"Rapid Fire 1, Heavy, Blast", []RuleID{Blast, Heavy, "rapid_fire_1"}},
		{"Feel No Pain 5+", []RuleID{"fnp_5"}},
		{"Sustained Hits", []RuleID{SustainedHits}},
		{"Psychic, Something New, ", []RuleID{}},
		{"", []RuleID{}},
	}
	for _, tc := range tcs {
		got := ParseSpecialRules(tc.text).IDs()
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseSpecialRules(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestAntiParts(t *testing.T) {
	kw, n, ok := Anti("Heavy Infantry", 3).AntiParts()
	if !ok || kw != "heavy-infantry" || n != 3 {
		t.Fatalf("AntiParts = %q %d %v", kw, n, ok)
	}
	if _, _, ok := RuleID("anti_x_9").AntiParts(); ok {
		t.Fatalf("threshold 9 must be rejected")
	}
	if _, _, ok := RuleID("anti_").AntiParts(); ok {
		t.Fatalf("empty anti must be rejected")
	}
}

func TestResolveInvulnPicksStrictest(t *testing.T) {
	tcs := []struct {
		base    int
		toggles Set
		want    int
	}{
		{0, nil, 0},
		{5, nil, 5},
		{0, NewSet(Invuln(4)), 4},
		{5, NewSet(Invuln(4), Invuln(6)), 4},
		{3, NewSet(Invuln(4)), 3},
		{0, NewSet("invuln_9", "invuln_x"), 0},
	}
	for _, tc := range tcs {
		if got := ResolveInvuln(tc.base, tc.toggles); got != tc.want {
			t.Fatalf("ResolveInvuln(%d, %v) = %d, want %d", tc.base, tc.toggles, got, tc.want)
		}
	}
}

func TestResolveFNP(t *testing.T) {
	if got := ResolveFNP(6, NewSet(FNP(5), FNP(4))); got != 4 {
		t.Fatalf("ResolveFNP = %d, want 4", got)
	}
	if got := ResolveFNP(0, Set{FNP(5): false}); got != 0 {
		t.Fatalf("disabled toggle must not count, got %d", got)
	}
}

func TestStageRulesDropsUnknown(t *testing.T) {
	set := NewSet(HitPlus1, LethalHits, TwinLinked, "quantum_shielding", SavePlus1, FNP(5))
	hit := StageRules(set, StageHit)
	if !reflect.DeepEqual(hit.IDs(), []RuleID{HitPlus1, LethalHits}) {
		t.Fatalf("hit stage = %v", hit.IDs())
	}
	if !reflect.DeepEqual(StageRules(set, StageWound).IDs(), []RuleID{TwinLinked}) {
		t.Fatalf("wound stage = %v", StageRules(set, StageWound).IDs())
	}
	if !reflect.DeepEqual(StageRules(set, StageDamage).IDs(), []RuleID{FNP(5)}) {
		t.Fatalf("damage stage = %v", StageRules(set, StageDamage).IDs())
	}
	if Known("quantum_shielding") {
		t.Fatalf("unknown rule reported as known")
	}
}

func TestResolveModifiers(t *testing.T) {
	weapon := ParseSpecialRules("Sustained Hits 2, Anti-Infantry 4+, Devastating Wounds, Rapid Fire 2, Melta 2")
	target := Target{Models: 10, Keywords: []string{"Infantry", "Imperium"}, Invuln: 5, FNP: 6}

	m := Resolve(weapon, NewSet(HitPlus1, HitMinus1, WoundPlus1, SavePlus1, SaveMinus1, Invuln(4)), target)
	if m.Hit.Modifier != 0 {
		t.Fatalf("opposing hit toggles must cancel, got %d", m.Hit.Modifier)
	}
	if m.Wound.Modifier != 1 || m.Save.Modifier != 0 {
		t.Fatalf("wound/save modifiers = %d/%d", m.Wound.Modifier, m.Save.Modifier)
	}
	if m.Hit.Sustained != 2 || m.Hit.CritOn != 6 {
		t.Fatalf("hit mods = %+v", m.Hit)
	}
	if m.Wound.CritOn != 4 || !m.Wound.Devastating {
		t.Fatalf("wound mods = %+v", m.Wound)
	}
	if m.Save.Invuln != 4 || m.Damage.FNP != 6 {
		t.Fatalf("invuln/fnp = %d/%d", m.Save.Invuln, m.Damage.FNP)
	}
	if m.Attacks.RapidFire != 0 || m.Damage.Melta != 0 {
		t.Fatalf("range-dependent rules must need half_range: %+v %+v", m.Attacks, m.Damage)
	}

	m = Resolve(weapon, NewSet(HalfRange), Target{Keywords: []string{"Vehicle"}})
	if m.Attacks.RapidFire != 2 || m.Damage.Melta != 2 {
		t.Fatalf("half range: rapid fire %d melta %d", m.Attacks.RapidFire, m.Damage.Melta)
	}
	if m.Wound.CritOn != 6 {
		t.Fatalf("anti must not apply without keyword, got %d", m.Wound.CritOn)
	}
}

func TestResolveRangeBonusesTakeTheWeaponValue(t *testing.T) {
	rf2 := ParseSpecialRules("Rapid Fire 2")
	melta2 := ParseSpecialRules("Melta 2")
	tcs := []struct {
		name      string
		weapon    Set
		toggles   Set
		rapidFire int
		melta     int
	}{
		{"bare rapid fire toggle uses weapon value", rf2, NewSet(RapidFire), 2, 0},
		{"bare rapid fire toggle on a plain weapon", Set{}, NewSet(RapidFire), 0, 0},
		{"printed rapid fire without a value", NewSet(RapidFire), NewSet(RapidFire), 1, 0},
		{"numbered toggle overrides weapon", rf2, NewSet(RapidFireN(3)), 3, 0},
		{"bare melta toggle uses weapon value", melta2, FromStrings([]string{"melta"}), 0, 2},
		{"bare melta toggle on a plain weapon", Set{}, FromStrings([]string{"melta"}), 0, 0},
		{"numbered melta toggle overrides weapon", melta2, NewSet(Melta(4)), 0, 4},
		{"half range switches both on", rf2.Merge(melta2), NewSet(HalfRange), 2, 2},
		{"nothing toggled", rf2.Merge(melta2), Set{}, 0, 0},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m := Resolve(tc.weapon, tc.toggles, Target{})
			if m.Attacks.RapidFire != tc.rapidFire || m.Damage.Melta != tc.melta {
				t.Fatalf("rapid fire %d melta %d, want %d %d", m.Attacks.RapidFire, m.Damage.Melta, tc.rapidFire, tc.melta)
			}
		})
	}
}

func TestResolveCover(t *testing.T) {
	if m := Resolve(Set{}, NewSet(SavePlus1), Target{}); m.Save.Modifier != 1 {
		t.Fatalf("cover = %d", m.Save.Modifier)
	}
	if m := Resolve(NewSet(IgnoresCover), NewSet(SavePlus1), Target{}); m.Save.Modifier != 0 {
		t.Fatalf("ignores cover = %d", m.Save.Modifier)
	}
}

func TestHeavyNeedsStationary(t *testing.T) {
	if m := Resolve(NewSet(Heavy), Set{}, Target{}); m.Hit.Modifier != 0 {
		t.Fatalf("heavy without stationary = %d", m.Hit.Modifier)
	}
	if m := Resolve(NewSet(Heavy), NewSet(RemainedStationary, HitPlus1), Target{}); m.Hit.Modifier != 1 {
		t.Fatalf("heavy must not push past +1, got %d", m.Hit.Modifier)
	}
}

func TestTwinLinkedRerollsWounds(t *testing.T) {
	m := Resolve(NewSet(TwinLinked), Set{}, Target{})
	if !m.Wound.RerollFailed {
		t.Fatalf("twin-linked must reroll failed wounds")
	}
}

func TestAutoDetect(t *testing.T) {
	got := AutoDetect([]string{
		"Disgustingly Resilient: each time a model would lose a wound, roll one D6: on a 5+ (Feel No Pain 5+)",
		"Armour of Contempt: subtract 1 from the Damage characteristic",
		"Shield: Feel no pain 4+ against mortal wounds",
	}, 4)
	want := []RuleID{DamageMinus1, FNP(4), Invuln(4)}
	if !reflect.DeepEqual(got.IDs(), want) {
		t.Fatalf("AutoDetect = %v, want %v", got.IDs(), want)
	}
	if len(AutoDetect(nil, 0)) != 0 {
		t.Fatalf("empty input must detect nothing")
	}
}

func TestFromStrings(t *testing.T) {
	s := FromStrings([]string{" Lethal_Hits ", "", "fnp_5"})
	if !reflect.DeepEqual(s.Strings(), []string{"fnp_5", "lethal_hits"}) {
		t.Fatalf("FromStrings = %v", s.Strings())
	}
}

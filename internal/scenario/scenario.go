// Package scenario reads simulation requests from YAML files and JSON
// bodies and turns them into sim configs.
package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pefman/w40k-mathhammer/internal/api"
	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/models"
	"github.com/pefman/w40k-mathhammer/internal/rules"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

// Scenario is one attack setup.
type Scenario struct {
	Name        string               `yaml:"name" json:"name,omitempty"`
	Trials      int                  `yaml:"trials" json:"trials,omitempty"`
	Phase       string               `yaml:"phase" json:"phase,omitempty"`
	Seed        uint64               `yaml:"seed" json:"seed,omitempty"`
	Defender    *Defender            `yaml:"defender" json:"defender,omitempty"`
	DefenderRef *UnitRef             `yaml:"defender_ref" json:"defender_ref,omitempty"`
	Override    sim.DefenderOverride `yaml:"override" json:"override,omitempty"`
	Toggles     []string             `yaml:"toggles" json:"toggles,omitempty"`
	Weapons     []Weapon             `yaml:"weapons" json:"weapons"`
	Attackers   []Attacker           `yaml:"attackers" json:"attackers"`
}

// UnitRef names a unit in the roster data API.
type UnitRef struct {
	Faction string `yaml:"faction" json:"faction"`
	Unit    string `yaml:"unit" json:"unit"`
}

type Defender struct {
	UnitID    string   `yaml:"unit_id" json:"unit_id,omitempty"`
	Name      string   `yaml:"name" json:"name,omitempty"`
	Toughness int      `yaml:"toughness" json:"toughness"`
	Save      int      `yaml:"save" json:"save"`
	Wounds    int      `yaml:"wounds" json:"wounds"`
	Models    int      `yaml:"models" json:"models"`
	Invuln    int      `yaml:"invuln" json:"invuln,omitempty"`
	FNP       int      `yaml:"fnp" json:"fnp,omitempty"`
	Keywords  []string `yaml:"keywords" json:"keywords,omitempty"`
}

type Weapon struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name,omitempty"`
	Kind     string `yaml:"kind" json:"kind,omitempty"`
	Skill    int    `yaml:"skill" json:"skill"`
	Strength int    `yaml:"strength" json:"strength"`
	AP       int    `yaml:"ap" json:"ap"`
	Damage   Dice   `yaml:"damage" json:"damage"`
	// Rules is ability text such as "lethal hits, anti-infantry 4+".
	Rules string `yaml:"rules" json:"rules,omitempty"`
}

// Attacker fires one weapon from Models models, Attacks each. With UnitRef
// set, Weapon names a weapon on that roster datasheet and Attacks defaults
// to the datasheet value.
type Attacker struct {
	Unit    string   `yaml:"unit" json:"unit"`
	Weapon  string   `yaml:"weapon" json:"weapon"`
	Models  int      `yaml:"models" json:"models,omitempty"`
	Attacks Dice     `yaml:"attacks" json:"attacks"`
	UnitRef *UnitRef `yaml:"unit_ref" json:"unit_ref,omitempty"`
}

// Dice is a characteristic written either as a number or as a dice
// expression ("D6", "2D3+1").
type Dice string

func (d *Dice) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: dice value must be a scalar", n.Line)
	}
	*d = Dice(strings.TrimSpace(n.Value))
	return nil
}

func (d *Dice) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Dice(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("dice value must be a number or string: %w", err)
	}
	*d = Dice(strings.TrimSpace(s))
	return nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes YAML, rejecting keys the scenario does not define.
func Parse(b []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty scenario")
		}
		return nil, err
	}
	return &s, nil
}

// Config converts the inline parts of the scenario. Roster references are
// left out: attackers with a UnitRef are skipped and a DefenderRef without
// an inline defender yields no defender. Build resolves both.
func (s *Scenario) Config() (sim.Config, error) {
	phase, err := game.ParsePhase(s.Phase)
	if err != nil {
		return sim.Config{}, err
	}
	cfg := sim.Config{
		Trials:   s.Trials,
		Phase:    phase,
		Seed:     s.Seed,
		Override: s.Override,
		Toggles:  rules.FromStrings(s.Toggles),
		Weapons:  make(map[string]game.WeaponProfile, len(s.Weapons)),
	}
	if cfg.Trials == 0 {
		cfg.Trials = sim.DefaultTrials
	}

	for i, w := range s.Weapons {
		id := strings.TrimSpace(w.ID)
		if id == "" {
			return sim.Config{}, fmt.Errorf("weapon %d: missing id", i+1)
		}
		if _, dup := cfg.Weapons[id]; dup {
			return sim.Config{}, fmt.Errorf("weapon %q defined twice", id)
		}
		dmg := w.Damage
		if dmg == "" {
			dmg = "1"
		}
		expr, err := engine.ParseExpr(string(dmg))
		if err != nil {
			return sim.Config{}, fmt.Errorf("weapon %q damage: %w", id, err)
		}
		kind := game.KindRanged
		if strings.EqualFold(w.Kind, string(game.KindMelee)) {
			kind = game.KindMelee
		}
		name := w.Name
		if name == "" {
			name = id
		}
		cfg.Weapons[id] = game.WeaponProfile{
			ID:       id,
			Name:     name,
			Kind:     kind,
			Skill:    w.Skill,
			Strength: w.Strength,
			AP:       w.AP,
			Damage:   expr,
			Rules:    rules.ParseSpecialRules(w.Rules),
		}
	}

	for i, a := range s.Attackers {
		if a.UnitRef != nil {
			continue
		}
		per, err := engine.AverageAttacks(string(a.Attacks))
		if err != nil {
			return sim.Config{}, fmt.Errorf("attacker %d attacks: %w", i+1, err)
		}
		asg, err := assignment(a.Unit, a.Weapon, a.Models, per)
		if err != nil {
			return sim.Config{}, fmt.Errorf("attacker %d: %w", i+1, err)
		}
		cfg.Attackers = append(cfg.Attackers, asg)
	}

	if d := s.Defender; d != nil {
		cfg.Defender = &game.DefenderProfile{
			UnitID:    d.UnitID,
			Name:      d.Name,
			Toughness: d.Toughness,
			Save:      defaultSave(d.Save),
			Wounds:    d.Wounds,
			Models:    d.Models,
			Invuln:    d.Invuln,
			FNP:       d.FNP,
			Keywords:  d.Keywords,
		}
	}
	return cfg, nil
}

// assignment builds the assignment for models models with per attacks each.
// Limits are checked before anything is allocated.
func assignment(unit, weapon string, models, per int) (game.AttackerAssignment, error) {
	n := max(1, models)
	if n > sim.MaxModels {
		return game.AttackerAssignment{}, fmt.Errorf("%d models, at most %d allowed", n, sim.MaxModels)
	}
	if per > sim.MaxAttacks {
		return game.AttackerAssignment{}, fmt.Errorf("%d attacks per model, at most %d allowed", per, sim.MaxAttacks)
	}
	ids := make([]string, n)
	for j := range ids {
		ids[j] = unit + "-" + strconv.Itoa(j+1)
	}
	return game.AttackerAssignment{
		UnitID:   unit,
		WeaponID: weapon,
		ModelIDs: ids,
		Attacks:  per * n,
	}, nil
}

// Roster looks up datasheets in the roster data API.
type Roster interface {
	FetchUnit(ctx context.Context, faction, unit string) (models.Unit, error)
}

// ErrInvalid marks a scenario that is wrong as written, as opposed to a
// roster lookup that failed.
var ErrInvalid = errors.New("invalid scenario")

// Build converts the scenario and resolves its roster references. Attackers
// with a UnitRef take the named weapon's profile from the datasheet, under
// the ID "<unit id>/<weapon slug>". DefenderRef fills the defender when no
// inline one is given, with the rules detected from its abilities merged
// into the toggles. roster may be nil when nothing is referenced.
func (s *Scenario) Build(ctx context.Context, roster Roster) (sim.Config, error) {
	cfg, err := s.Config()
	if err != nil {
		return sim.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	units := map[UnitRef]models.Unit{}
	fetch := func(ref UnitRef) (models.Unit, error) {
		if u, ok := units[ref]; ok {
			return u, nil
		}
		if roster == nil {
			return models.Unit{}, fmt.Errorf("%w: %s references the roster but no roster data source is configured", ErrInvalid, ref)
		}
		u, err := roster.FetchUnit(ctx, ref.Faction, ref.Unit)
		if err != nil {
			return models.Unit{}, fmt.Errorf("resolve %s: %w", ref, err)
		}
		units[ref] = u
		return u, nil
	}

	fromRoster := map[string]bool{}
	for i, a := range s.Attackers {
		if a.UnitRef == nil {
			continue
		}
		u, err := fetch(*a.UnitRef)
		if err != nil {
			return sim.Config{}, err
		}
		w, ok := u.Weapon(a.Weapon)
		if !ok {
			return sim.Config{}, fmt.Errorf("%w: attacker %d: %s has no weapon %q", ErrInvalid, i+1, u.Name, a.Weapon)
		}
		prof, err := api.WeaponFromModel(w)
		if err != nil {
			return sim.Config{}, fmt.Errorf("%w: attacker %d: %v", ErrInvalid, i+1, err)
		}
		prof.ID = u.ID + "/" + prof.ID
		if _, dup := cfg.Weapons[prof.ID]; dup && !fromRoster[prof.ID] {
			return sim.Config{}, fmt.Errorf("%w: weapon %q defined twice", ErrInvalid, prof.ID)
		}
		cfg.Weapons[prof.ID] = prof
		fromRoster[prof.ID] = true

		attacks := string(a.Attacks)
		if attacks == "" {
			attacks = w.Attacks
		}
		per, err := engine.AverageAttacks(attacks)
		if err != nil {
			return sim.Config{}, fmt.Errorf("%w: attacker %d attacks: %v", ErrInvalid, i+1, err)
		}
		unit := a.Unit
		if unit == "" {
			unit = u.ID
		}
		asg, err := assignment(unit, prof.ID, a.Models, per)
		if err != nil {
			return sim.Config{}, fmt.Errorf("%w: attacker %d: %v", ErrInvalid, i+1, err)
		}
		cfg.Attackers = append(cfg.Attackers, asg)
	}

	if cfg.Defender == nil && s.DefenderRef != nil {
		u, err := fetch(*s.DefenderRef)
		if err != nil {
			return sim.Config{}, err
		}
		d, detected := api.DefenderFromUnit(u)
		SetDefender(&cfg, d, detected)
	}
	return cfg, nil
}

func (r UnitRef) String() string { return r.Faction + "/" + r.Unit }

// SetDefender fills cfg's defender from a resolved profile, merging the
// rules detected from its datasheet into the toggles.
func SetDefender(cfg *sim.Config, d game.DefenderProfile, detected rules.Set) {
	cfg.Defender = &d
	cfg.Toggles = cfg.Toggles.Merge(detected)
}

// a missing save is written as 0 or 7
func defaultSave(n int) int {
	if n == 0 {
		return game.NoSave
	}
	return n
}

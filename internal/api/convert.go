package api

import (
	"fmt"
	"strings"

	"github.com/pefman/w40k-mathhammer/internal/engine"
	"github.com/pefman/w40k-mathhammer/internal/game"
	"github.com/pefman/w40k-mathhammer/internal/models"
	"github.com/pefman/w40k-mathhammer/internal/rules"
)

// DefenderFromUnit builds a defender profile from roster data. The returned
// set holds the rules auto-detected from the datasheet (invulnerable save,
// feel no pain, damage reduction) for merging into the run's toggles.
func DefenderFromUnit(u models.Unit) (game.DefenderProfile, rules.Set) {
	d := game.DefenderProfile{
		UnitID:    u.ID,
		Name:      u.Name,
		Toughness: u.Toughness,
		Save:      u.Save,
		Wounds:    u.Wounds,
		Models:    max(1, u.Models),
		Invuln:    u.Invuln,
		Keywords:  append([]string(nil), u.Keywords...),
	}
	detected := rules.AutoDetect(u.Abilities, u.Invuln)
	d.FNP = rules.ResolveFNP(0, detected)
	return d, detected
}

// WeaponFromModel converts a roster weapon into a profile. The weapon ID is
// the slug of its name.
func WeaponFromModel(w models.Weapon) (game.WeaponProfile, error) {
	dmg, err := engine.ParseExpr(w.Damage)
	if err != nil {
		return game.WeaponProfile{}, fmt.Errorf("weapon %q damage: %w", w.Name, err)
	}
	kind := game.KindRanged
	if strings.EqualFold(w.Kind, string(game.KindMelee)) {
		kind = game.KindMelee
	}
	return game.WeaponProfile{
		ID:       toSlug(w.Name),
		Name:     w.Name,
		Kind:     kind,
		Skill:    w.Skill,
		Strength: w.Strength,
		AP:       w.AP,
		Damage:   dmg,
		Rules:    rules.ParseSpecialRules(w.Rules),
	}, nil
}

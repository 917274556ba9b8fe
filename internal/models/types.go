package models

import "strings"

// ========================= Roster Models =========================
// Shapes supplied by the unit data API. The api package maps raw responses
// into these and converts them into simulation profiles.

type Weapon struct {
	Name  string `json:"name"`
	Range string `json:"range"`
	// Kind is "ranged" or "melee", taken from the data source's weapon type.
	Kind string `json:"kind"`
	// Attacks is kept as printed ("2", "D6", "D3+3") and averaged when a
	// profile is built.
	Attacks  string `json:"attacks"`
	Skill    int    `json:"skill"`
	Strength int    `json:"strength"`
	AP       int    `json:"ap"`
	Damage   string `json:"damage"`
	// Rules holds the raw special rule text, e.g. "lethal hits, anti-infantry 4+".
	Rules string `json:"rules,omitempty"`
}

type Unit struct {
	ID        string   `json:"id"`
	Faction   string   `json:"faction,omitempty"`
	Name      string   `json:"name"`
	Toughness int      `json:"toughness"`
	Save      int      `json:"save"`   // 7 when the unit has no armour save
	Wounds    int      `json:"wounds"` // per model
	Models    int      `json:"models"`
	Weapons   []Weapon `json:"weapons"`
	Points    int      `json:"points,omitempty"`
	// Extras
	Invuln      int      `json:"invuln,omitempty"`
	InvulnDescr string   `json:"invuln_descr,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Abilities   []string `json:"abilities,omitempty"` // "name: description" lines
}

// Weapon finds a weapon by name, ignoring case.
func (u Unit) Weapon(name string) (Weapon, bool) {
	name = strings.TrimSpace(name)
	for _, w := range u.Weapons {
		if strings.EqualFold(w.Name, name) {
			return w, true
		}
	}
	return Weapon{}, false
}

type Faction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebSocket message structure
type WsMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

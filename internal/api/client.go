package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/models"
)

// ErrNoUnits is returned when a faction or unit lookup comes back empty.
var ErrNoUnits = errors.New("no units found")

// Config holds API configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	FactionTTL time.Duration
}

// Client reads faction and unit data from the roster data API.
type Client struct {
	config Config
	http   *http.Client
	log    *zap.Logger

	// faction list cache to reduce redundant API calls
	mu         sync.RWMutex
	factions   []models.Faction
	factionsAt time.Time
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := Config{BaseURL: baseURL, Timeout: 8 * time.Second, FactionTTL: 5 * time.Minute}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (c *Client) apiGet(ctx context.Context, path string, out any) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: api status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// API response types
type apiUnit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiWeapon struct {
	Name     string `json:"name"`
	Range    string `json:"range"`
	Type     string `json:"type"`
	Desc     string `json:"description"`
	Attacks  string `json:"attacks"`
	BSOrWS   string `json:"bs_ws"`
	Strength string `json:"strength"`
	AP       string `json:"ap"`
	Damage   string `json:"damage"`
}

type apiModel struct {
	Name string `json:"name"`
	T    string `json:"T"`
	Sv   string `json:"Sv"`
	Inv  string `json:"inv_sv"`
	InvD string `json:"inv_sv_descr"`
	W    string `json:"W"`
}

type apiKeyword struct {
	Keyword string `json:"keyword"`
	Model   string `json:"model"`
}

type apiAbility struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type apiCost struct {
	Line        int    `json:"line"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

// FetchFactions lists factions, served from cache while it is fresh.
func (c *Client) FetchFactions(ctx context.Context) ([]models.Faction, error) {
	c.mu.RLock()
	if time.Since(c.factionsAt) < c.config.FactionTTL && len(c.factions) > 0 {
		out := append([]models.Faction(nil), c.factions...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	var res []models.Faction
	if err := c.apiGet(ctx, "/api/factions", &res); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.factions = append([]models.Faction(nil), res...)
	c.factionsAt = time.Now()
	c.mu.Unlock()
	return res, nil
}

func toSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "/", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// FetchUnits loads every unit of a faction with its statline, weapons,
// keywords and abilities. Units whose models cannot be loaded are skipped.
func (c *Client) FetchUnits(ctx context.Context, faction string) ([]models.Unit, error) {
	slug := toSlug(faction)
	var list []apiUnit
	if err := c.apiGet(ctx, "/api/"+slug+"/units", &list); err != nil {
		return nil, err
	}
	out := make([]models.Unit, 0, len(list))
	for _, u := range list {
		unit, err := c.loadUnit(ctx, faction, slug, u)
		if err != nil {
			c.log.Debug("skipping unit", zap.String("faction", faction), zap.String("unit", u.Name), zap.Error(err))
			continue
		}
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	if len(out) == 0 {
		return nil, fmt.Errorf("faction %q: %w", faction, ErrNoUnits)
	}
	return out, nil
}

// FetchUnit loads a single unit by name or ID.
func (c *Client) FetchUnit(ctx context.Context, faction, unit string) (models.Unit, error) {
	slug := toSlug(faction)
	var list []apiUnit
	if err := c.apiGet(ctx, "/api/"+slug+"/units", &list); err != nil {
		return models.Unit{}, err
	}
	for _, u := range list {
		if strings.EqualFold(u.Name, unit) || u.ID == unit {
			return c.loadUnit(ctx, faction, slug, u)
		}
	}
	return models.Unit{}, fmt.Errorf("unit %q in %q: %w", unit, faction, ErrNoUnits)
}

func (c *Client) loadUnit(ctx context.Context, faction, slug string, u apiUnit) (models.Unit, error) {
	base := "/api/" + slug + "/" + u.ID
	var ms []apiModel
	if err := c.apiGet(ctx, base+"/models", &ms); err != nil {
		return models.Unit{}, err
	}
	unit := models.Unit{
		ID:        u.ID,
		Faction:   faction,
		Name:      u.Name,
		Toughness: 4,
		Save:      4,
		Wounds:    1,
		Models:    1, // the API lists model profiles, not a head count
	}
	// the first model carries the unit's statline
	if len(ms) > 0 {
		unit.Wounds = mustAtoi(ms[0].W, 1)
		unit.Toughness = mustAtoi(ms[0].T, 4)
		unit.Save = parseSave(ms[0].Sv)
		unit.Invuln = parseInvuln(ms[0].Inv)
		unit.InvulnDescr = strings.TrimSpace(ms[0].InvD)
	}

	// everything below is optional; a failed lookup leaves the field empty
	var ws []apiWeapon
	if err := c.apiGet(ctx, base+"/weapons", &ws); err != nil {
		c.log.Debug("weapons unavailable", zap.String("unit", u.Name), zap.Error(err))
	}
	for _, w := range ws {
		unit.Weapons = append(unit.Weapons, convertWeapon(w))
	}

	var ks []apiKeyword
	_ = c.apiGet(ctx, base+"/keywords", &ks)
	for _, k := range ks {
		if s := strings.TrimSpace(k.Keyword); s != "" {
			unit.Keywords = append(unit.Keywords, s)
		}
	}

	var as []apiAbility
	_ = c.apiGet(ctx, base+"/abilities", &as)
	for _, a := range as {
		unit.Abilities = append(unit.Abilities, strings.TrimSpace(a.Name+": "+a.Description))
	}

	var costs []apiCost
	_ = c.apiGet(ctx, base+"/costs", &costs)
	for _, cost := range costs {
		if n := mustAtoi(cost.Cost, 0); n > 0 {
			unit.Points = n
			break
		}
	}
	return unit, nil
}

func convertWeapon(w apiWeapon) models.Weapon {
	kind := "ranged"
	if strings.Contains(strings.ToLower(w.Type+" "+w.Range), "melee") {
		kind = "melee"
	}
	return models.Weapon{
		Name:     strings.TrimSpace(w.Name),
		Range:    strings.TrimSpace(w.Range),
		Kind:     kind,
		Attacks:  strings.TrimSpace(w.Attacks),
		Skill:    clamp(2, 6, mustAtoi(w.BSOrWS, 4)),
		Strength: mustAtoi(w.Strength, 4),
		AP:       mustAtoi(w.AP, 0),
		Damage:   strings.TrimSpace(w.Damage),
		Rules:    joinRules(w.Type, w.Desc),
	}
}

// joinRules keeps every non-empty rules fragment; the rules parser ignores
// tokens such as "Ranged" that it does not know.
func joinRules(parts ...string) string {
	keep := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, ", ")
}

func mustAtoi(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "+")); err == nil {
		return n
	}
	// first integer in the string, keeping a leading minus
	num := ""
	for i, r := range s {
		if (r == '-' && i == 0) || (r >= '0' && r <= '9') {
			num += string(r)
		} else if num != "" {
			break
		}
	}
	if n, err := strconv.Atoi(num); err == nil {
		return n
	}
	return def
}

func clamp(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// parseSave reads "3+"; anything without a number means no save.
func parseSave(s string) int {
	n := mustAtoi(s, 7)
	if n < 2 || n > 6 {
		return 7
	}
	return n
}

func parseInvuln(s string) int {
	n := mustAtoi(s, 0)
	if n < 2 || n > 6 {
		return 0
	}
	return n
}

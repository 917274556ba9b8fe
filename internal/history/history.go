// Package history keeps completed simulations in memory so they can be
// listed, fetched again and exported.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pefman/w40k-mathhammer/internal/sim"
)

// ErrNotFound is returned for unknown or evicted IDs.
var ErrNotFound = errors.New("run not found")

// DefaultSize is used when a store is created with a non-positive size.
const DefaultSize = 50

type Kind string

const (
	KindRun     Kind = "run"
	KindCompare Kind = "compare"
)

// Entry is one completed run or comparison.
type Entry struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Trials     int       `json:"trials"`
	Seed       uint64    `json:"seed"`
	MeanDamage float64   `json:"mean_damage"`

	Run        *sim.Result     `json:"-"`
	Comparison *sim.Comparison `json:"-"`
}

// NewRunEntry describes a single run.
func NewRunEntry(label string, res *sim.Result) Entry {
	return Entry{
		Kind:       KindRun,
		Label:      label,
		Trials:     res.Trials(),
		Seed:       res.Seed,
		MeanDamage: res.Mean(),
		Run:        res,
	}
}

// NewCompareEntry describes a comparison; MeanDamage is the best entry's.
func NewCompareEntry(label string, cmp *sim.Comparison) Entry {
	e := Entry{Kind: KindCompare, Label: label, Seed: cmp.Seed, Comparison: cmp}
	if len(cmp.Entries) > 0 {
		e.MeanDamage = cmp.Entries[0].MeanDamage
		e.Trials = cmp.Entries[0].Result.Trials()
	}
	return e
}

// Store is a bounded, oldest-first-evicted set of entries.
type Store struct {
	mu    sync.Mutex
	size  int
	order []string
	byID  map[string]Entry
	best  map[string]Entry // per UTC day, highest mean damage
	now   func() time.Time
}

func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{size: size, byID: map[string]Entry{}, best: map[string]Entry{}, now: time.Now}
}

// Put stores e under a fresh ID and returns the stored entry.
func (s *Store) Put(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	s.byID[e.ID] = e
	s.order = append(s.order, e.ID)
	for len(s.order) > s.size {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	day := e.CreatedAt.Format("2006-01-02")
	for k := range s.best {
		if k != day {
			delete(s.best, k)
		}
	}
	if cur, ok := s.best[day]; !ok || e.MeanDamage > cur.MeanDamage {
		s.best[day] = e
	}
	return e
}

func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// List returns entries newest first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}

// BestToday is the highest mean-damage entry stored on the current UTC day,
// even if it has since been evicted.
func (s *Store) BestToday() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.best[s.now().UTC().Format("2006-01-02")]
	return e, ok
}

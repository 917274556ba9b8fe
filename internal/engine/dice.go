package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidExpr is returned for dice expressions that cannot be parsed.
var ErrInvalidExpr = errors.New("invalid dice expression")

var diceRe = regexp.MustCompile(`(?i)^\s*(\d+)?\s*d\s*(\d+)(\s*([+\-x*])\s*(\d+))?\s*$`)

// Source is the entropy behind every roll. *rand.Rand satisfies it.
type Source interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// NewSource returns a PCG-backed generator for seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed reads a seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Roller rolls dice against a single Source. A Roller is not safe for
// concurrent use; each worker owns its own.
type Roller struct {
	src Source
}

func NewRoller(seed uint64) *Roller { return &Roller{src: NewSource(seed)} }

func NewRollerFrom(src Source) *Roller { return &Roller{src: src} }

// D6 returns a uniform 1..6.
func (r *Roller) D6() int { return 1 + r.src.IntN(6) }

// Roll returns a uniform 1..sides.
func (r *Roller) Roll(sides int) int {
	if sides <= 1 {
		return 1
	}
	return 1 + r.src.IntN(sides)
}

// RollExpr sums e.Count dice of e.Sides and applies the modifier.
func (r *Roller) RollExpr(e Expr) int {
	if e.Sides == 0 {
		return clampZero(e.apply(e.Count))
	}
	total := 0
	for i := 0; i < e.Count; i++ {
		total += r.Roll(e.Sides)
	}
	return clampZero(e.apply(total))
}

// Expr is a parsed dice expression such as "2D6+1". A flat value has Sides 0
// and carries the value in Count.
type Expr struct {
	Count int
	Sides int
	Mod   int // added after the dice, may be negative
	Mul   int // 0 or 1 means no multiplier
}

// Flat returns an expression that always yields n.
func Flat(n int) Expr { return Expr{Count: n} }

// ParseExpr supports: N, DM, NDM, NDM+K, NDM-K, NDMxK / NDM*K.
func ParseExpr(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Expr{}, fmt.Errorf("%w: empty", ErrInvalidExpr)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Expr{}, fmt.Errorf("%w: %q is negative", ErrInvalidExpr, s)
		}
		return Flat(n), nil
	}
	m := diceRe.FindStringSubmatch(s)
	if m == nil {
		return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, s)
	}
	e := Expr{Count: 1}
	if m[1] != "" {
		e.Count, _ = strconv.Atoi(m[1])
	}
	e.Sides, _ = strconv.Atoi(m[2])
	if e.Count < 1 || e.Sides < 1 {
		return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, s)
	}
	if m[3] != "" {
		k, _ := strconv.Atoi(m[5])
		switch m[4] {
		case "+":
			e.Mod = k
		case "-":
			e.Mod = -k
		case "x", "X", "*":
			e.Mul = k
		}
	}
	return e, nil
}

// MustParseExpr panics on malformed input. Intended for literals.
func MustParseExpr(s string) Expr {
	e, err := ParseExpr(s)
	if err != nil {
		panic(err)
	}
	return e
}

// IsFlat reports whether the expression needs no dice.
func (e Expr) IsFlat() bool { return e.Sides == 0 }

// Average is the expected value, ignoring the clamp at zero.
func (e Expr) Average() float64 {
	if e.IsFlat() {
		return float64(e.apply(e.Count))
	}
	avg := float64(e.Count) * float64(e.Sides+1) / 2
	if e.Mul > 1 {
		return avg * float64(e.Mul)
	}
	return avg + float64(e.Mod)
}

// Outcome is one possible result of an expression and its probability.
type Outcome struct {
	Value int
	P     float64
}

// Outcomes lists every result e can roll with its probability, ordered by the
// dice total. Values are clamped at zero like RollExpr, so neighbouring
// entries may share a value.
func (e Expr) Outcomes() []Outcome {
	if e.IsFlat() {
		return []Outcome{{Value: clampZero(e.apply(e.Count)), P: 1}}
	}
	face := 1 / float64(e.Sides)
	dist := []float64{1}
	for i := 0; i < e.Count; i++ {
		next := make([]float64, len(dist)+e.Sides)
		for sum, p := range dist {
			if p == 0 {
				continue
			}
			for f := 1; f <= e.Sides; f++ {
				next[sum+f] += p * face
			}
		}
		dist = next
	}
	out := make([]Outcome, 0, len(dist))
	for total, p := range dist {
		if p > 0 {
			out = append(out, Outcome{Value: clampZero(e.apply(total)), P: p})
		}
	}
	return out
}

func (e Expr) String() string {
	if e.IsFlat() {
		return strconv.Itoa(e.apply(e.Count))
	}
	var b strings.Builder
	if e.Count != 1 {
		b.WriteString(strconv.Itoa(e.Count))
	}
	b.WriteString("D")
	b.WriteString(strconv.Itoa(e.Sides))
	switch {
	case e.Mul > 1:
		fmt.Fprintf(&b, "x%d", e.Mul)
	case e.Mod > 0:
		fmt.Fprintf(&b, "+%d", e.Mod)
	case e.Mod < 0:
		fmt.Fprintf(&b, "-%d", -e.Mod)
	}
	return b.String()
}

// MarshalText keeps expressions readable in JSON and YAML.
func (e Expr) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Expr) UnmarshalText(b []byte) error {
	parsed, err := ParseExpr(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e Expr) apply(total int) int {
	if e.Mul > 1 {
		return total * e.Mul
	}
	return total + e.Mod
}

// AverageAttacks resolves an attacks characteristic to a whole number,
// rounding dice expressions to their average (D6 -> 4, D3 -> 2).
func AverageAttacks(s string) (int, error) {
	e, err := ParseExpr(s)
	if err != nil {
		return 0, err
	}
	return int(math.Round(e.Average())), nil
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

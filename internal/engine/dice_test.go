package engine

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"
)

// fixedSrc always returns min(v, n-1).
type fixedSrc struct{ v int }

func (f fixedSrc) IntN(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

func TestRollerDeterministicForSeed(t *testing.T) {
	a, b := NewRoller(42), NewRoller(42)
	for i := 0; i < 100; i++ {
		if x, y := a.D6(), b.D6(); x != y {
			t.Fatalf("roll %d: got %d and %d from same seed", i, x, y)
		}
	}
}

func TestD6Range(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRoller(rapid.Uint64().Draw(t, "seed"))
		for i := 0; i < 50; i++ {
			if v := r.D6(); v < 1 || v > 6 {
				t.Fatalf("d6 out of range: %d", v)
			}
		}
	})
}

func TestD6Uniform(t *testing.T) {
	r := NewRoller(7)
	var counts [7]int
	const n = 60000
	for i := 0; i < n; i++ {
		counts[r.D6()]++
	}
	for face := 1; face <= 6; face++ {
		if counts[face] < 9000 || counts[face] > 11000 {
			t.Fatalf("face %d rolled %d times out of %d", face, counts[face], n)
		}
	}
}

func TestParseExpr(t *testing.T) {
	tcs := []struct {
		in   string
		want Expr
		str  string
		avg  float64
		max  int
	}{
		{"3", Flat(3), "3", 3, 3},
		{"D6", Expr{Count: 1, Sides: 6}, "D6", 3.5, 6},
		{"d3", Expr{Count: 1, Sides: 3}, "D3", 2, 3},
		{"2D6+1", Expr{Count: 2, Sides: 6, Mod: 1}, "2D6+1", 8, 13},
		{" D6 - 1 ", Expr{Count: 1, Sides: 6, Mod: -1}, "D6-1", 2.5, 5},
		{"D3x2", Expr{Count: 1, Sides: 3, Mul: 2}, "D3x2", 4, 6},
	}
	for _, tc := range tcs {
		got, err := ParseExpr(tc.in)
		if err != nil {
			t.Fatalf("ParseExpr(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseExpr(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.str {
			t.Fatalf("String() = %q, want %q", got.String(), tc.str)
		}
		if got.Average() != tc.avg {
			t.Fatalf("Average(%q) = %v, want %v", tc.in, got.Average(), tc.avg)
		}
		outs := got.Outcomes()
		if top := outs[len(outs)-1].Value; top != tc.max {
			t.Fatalf("highest outcome of %q = %d, want %d", tc.in, top, tc.max)
		}
		var total, mean float64
		for _, o := range outs {
			total += o.P
			mean += o.P * float64(o.Value)
		}
		if math.Abs(total-1) > 1e-9 || math.Abs(mean-tc.avg) > 1e-9 {
			t.Fatalf("outcomes of %q sum to %v with mean %v", tc.in, total, mean)
		}
	}
}

func TestParseExprRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "D", "0D6", "-2", "D6+"} {
		if _, err := ParseExpr(in); !errors.Is(err, ErrInvalidExpr) {
			t.Fatalf("ParseExpr(%q) error = %v, want ErrInvalidExpr", in, err)
		}
	}
}

func TestRollExprStaysWithinOutcomes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := Expr{
			Count: rapid.IntRange(1, 4).Draw(t, "count"),
			Sides: rapid.SampledFrom([]int{3, 6}).Draw(t, "sides"),
			Mod:   rapid.IntRange(-3, 3).Draw(t, "mod"),
		}
		r := NewRoller(rapid.Uint64().Draw(t, "seed"))
		v := r.RollExpr(e)
		for _, o := range e.Outcomes() {
			if o.Value == v {
				return
			}
		}
		t.Fatalf("%s rolled %d, which is not a listed outcome", e, v)
	})
}

func TestRollExprWithFixedSource(t *testing.T) {
	r := NewRollerFrom(fixedSrc{v: 5})
	if got := r.RollExpr(MustParseExpr("2D6+1")); got != 13 {
		t.Fatalf("expected 13, got %d", got)
	}
	if got := r.RollExpr(MustParseExpr("D6-1")); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	r = NewRollerFrom(fixedSrc{v: 0})
	if got := r.RollExpr(MustParseExpr("D3-2")); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
	if got := r.RollExpr(Flat(2)); got != 2 {
		t.Fatalf("flat expression rolled %d", got)
	}
}

func TestAverageAttacks(t *testing.T) {
	tcs := map[string]int{"D6": 4, "D3": 2, "2D6": 7, "D3+3": 5, "4": 4}
	for in, want := range tcs {
		got, err := AverageAttacks(in)
		if err != nil {
			t.Fatalf("AverageAttacks(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("AverageAttacks(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestExprTextRoundTrip(t *testing.T) {
	var e Expr
	if err := e.UnmarshalText([]byte("2D3+2")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	b, _ := e.MarshalText()
	if string(b) != "2D3+2" {
		t.Fatalf("MarshalText = %q", b)
	}
}

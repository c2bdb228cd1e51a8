package tiers

import (
	"slices"
	"testing"
)

// ///////////////////////////////////////////////
// FindActive Tests
// ///////////////////////////////////////////////

func TestFindActive(t *testing.T) {
	ts := []Tier{{5, "Away"}, {15, "Deep Away"}}

	tests := []struct {
		idle float64
		want int
	}{
		{0, -1},
		{4.9, -1},
		{5.0, 0},
		{14.99, 0},
		{15, 1},
		{20, 1},
	}
	for _, tt := range tests {
		if got := FindActive(tt.idle, ts); got != tt.want {
			t.Errorf("FindActive(%v) = %d, want %d", tt.idle, got, tt.want)
		}
	}
}

func TestFindActiveEmpty(t *testing.T) {
	if got := FindActive(1000, nil); got != -1 {
		t.Errorf("FindActive(empty) = %d, want -1", got)
	}
}

func TestFindActiveDuplicateThresholdPicksLater(t *testing.T) {
	ts := []Tier{{5, "first"}, {5, "second"}, {10, "third"}}
	if got := FindActive(7, ts); got != 1 {
		t.Errorf("FindActive(7) = %d, want 1 (later duplicate wins)", got)
	}
}

func TestFindActiveMonotonic(t *testing.T) {
	ts := Sort([]Tier{{60, "c"}, {1, "a"}, {15, "b"}, {15, "b2"}, {240, "d"}})
	prev := -1
	for m := 0.0; m <= 300; m += 0.25 {
		got := FindActive(m, ts)
		if got < prev {
			t.Fatalf("FindActive not monotonic: m=%v got %d after %d", m, got, prev)
		}
		// Greatest index whose threshold is satisfied.
		want := -1
		for i := range ts {
			if float64(ts[i].Minutes) <= m {
				want = i
			}
		}
		if got != want {
			t.Fatalf("FindActive(%v) = %d, want %d", m, got, want)
		}
		prev = got
	}
}

// ///////////////////////////////////////////////
// Sort / Normalize Tests
// ///////////////////////////////////////////////

func TestSortResortsAscending(t *testing.T) {
	in := []Tier{{10, "x"}, {2, "y"}}
	got := Sort(in)
	want := []Tier{{2, "y"}, {10, "x"}}
	if !Equal(got, want) {
		t.Errorf("Sort() = %v, want %v", got, want)
	}
	if in[0].Minutes != 10 {
		t.Error("Sort() must not modify its input")
	}
}

func TestSortStable(t *testing.T) {
	got := Sort([]Tier{{5, "b"}, {1, "z"}, {5, "a"}})
	want := []Tier{{1, "z"}, {5, "b"}, {5, "a"}}
	if !Equal(got, want) {
		t.Errorf("Sort() = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Tier{{30, " Later "}, {0, "zero"}, {-3, "neg"}, {5, "Away"}})
	want := []Tier{{5, "Away"}, {30, "Later"}}
	if !Equal(got, want) {
		t.Errorf("Normalize() = %v, want %v", got, want)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty", got)
	}
}

func TestDuplicates(t *testing.T) {
	got := Duplicates([]Tier{{15, "a"}, {5, "b"}, {15, "c"}, {5, "d"}, {60, "e"}})
	if !slices.Equal(got, []int{5, 15}) {
		t.Errorf("Duplicates() = %v, want [5 15]", got)
	}
	if got := Duplicates(Defaults()); got != nil {
		t.Errorf("Duplicates(Defaults()) = %v, want nil", got)
	}
}

func TestDefaultsSorted(t *testing.T) {
	d := Defaults()
	if !Equal(d, Sort(d)) {
		t.Errorf("Defaults() not sorted: %v", d)
	}
}

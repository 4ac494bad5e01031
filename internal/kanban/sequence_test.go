package kanban

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMoveIsPermutation(t *testing.T) {
	seq := []string{"a", "b", "c", "d", "e"}
	for from := range seq {
		for to := range seq {
			got := Move(seq, from, to)
			if len(got) != len(seq) {
				t.Fatalf("Move(%d,%d) len = %d", from, to, len(got))
			}
			if got[to] != seq[from] {
				t.Fatalf("Move(%d,%d) = %v, want %q at %d", from, to, got, seq[from], to)
			}
			sorted := slices.Clone(got)
			slices.Sort(sorted)
			if diff := cmp.Diff(seq, sorted); diff != "" {
				t.Fatalf("Move(%d,%d) lost elements (-want +got):\n%s", from, to, diff)
			}
			rest := slices.DeleteFunc(slices.Clone(got), func(s string) bool { return s == seq[from] })
			want := slices.DeleteFunc(slices.Clone(seq), func(s string) bool { return s == seq[from] })
			if diff := cmp.Diff(want, rest); diff != "" {
				t.Fatalf("Move(%d,%d) reordered others (-want +got):\n%s", from, to, diff)
			}
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, seq); diff != "" {
		t.Fatalf("input modified:\n%s", diff)
	}
}

func TestMoveNoOps(t *testing.T) {
	seq := []int{1, 2, 3}
	cases := [][2]int{{1, 1}, {-1, 0}, {0, 3}, {5, 0}}
	for _, c := range cases {
		if got := Move(seq, c[0], c[1]); !slices.Equal(got, seq) {
			t.Fatalf("Move(%d,%d) = %v, want unchanged", c[0], c[1], got)
		}
	}
	if got := Move([]int(nil), 0, 0); got != nil {
		t.Fatalf("Move on nil = %v", got)
	}
}

func TestSequenceRejectsDuplicates(t *testing.T) {
	_, err := NewSequence(Column{ID: "a"}, Column{ID: "a"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := NewSequence(Column{ID: ""}); err == nil {
		t.Fatalf("expected empty id error")
	}
	seq, err := NewSequence(Column{ID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := seq.Append(Column{ID: "a"}); ok {
		t.Fatalf("append accepted duplicate id")
	}
}

func TestSequenceIsImmutable(t *testing.T) {
	base, err := NewSequence(Column{ID: "a", Title: "A"}, Column{ID: "b", Title: "B"})
	if err != nil {
		t.Fatal(err)
	}
	moved := base.Move(0, 1)
	renamed, ok := base.Replace("a", func(c Column) Column { c.Title = "Z"; return c })
	if !ok {
		t.Fatalf("replace failed")
	}
	removed, _ := base.Remove("b")
	if base.At(0).ID != "a" || base.At(0).Title != "A" || base.Len() != 2 {
		t.Fatalf("base changed: %v", base.Items())
	}
	if moved.At(0).ID != "b" || renamed.At(0).Title != "Z" || removed.Len() != 1 {
		t.Fatalf("unexpected results: %v %v %v", moved.Items(), renamed.Items(), removed.Items())
	}
	if _, ok := base.Replace("a", func(c Column) Column { c.ID = "x"; return c }); ok {
		t.Fatalf("replace allowed id change")
	}
	items := base.Items()
	items[0].Title = "mutated"
	if base.At(0).Title != "A" {
		t.Fatalf("Items leaked internal slice")
	}
}

package kanban

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshotRoundTrip(t *testing.T) {
	b := scenarioBoard(t)
	b.ReorderOrReassignTask("2", "3")
	blob, err := EncodeBoard(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored, report := Restore(blob)
	if report.Malformed != nil || report.Empty || len(report.Dropped) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if diff := cmp.Diff(b.Snapshot(), restored.Snapshot()); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestRestoreMalformedFallsBackToEmpty(t *testing.T) {
	cases := map[string]string{
		"columns not array": `{"columns": "not-an-array"}`,
		"not json":          `{{`,
		"array top level":   `[]`,
		"null":              `null`,
		"missing tasks":     `{"columns": []}`,
		"column no id":      `{"columns":[{"title":"x"}],"tasks":[]}`,
		"task no content":   `{"columns":[{"id":"c","title":"x"}],"tasks":[{"id":"t","columnId":"c"}]}`,
		"duplicate columns": `{"columns":[{"id":"c","title":"x"},{"id":"c","title":"y"}],"tasks":[]}`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			b, report := Restore(blob)
			if !errors.Is(report.Malformed, ErrMalformedSnapshot) {
				t.Fatalf("expected ErrMalformedSnapshot, got %v", report.Malformed)
			}
			if len(b.Columns()) != 0 || len(b.Tasks()) != 0 {
				t.Fatalf("board not empty")
			}
			if report.Notice() == "" {
				t.Fatalf("expected notice")
			}
		})
	}
}

func TestRestoreEmptyBlob(t *testing.T) {
	b, report := Restore("  ")
	if !report.Empty || report.Malformed != nil {
		t.Fatalf("report = %+v", report)
	}
	if len(b.Columns()) != 0 {
		t.Fatalf("expected empty board")
	}
	if report.Notice() != "" {
		t.Fatalf("unexpected notice %q", report.Notice())
	}
}

func TestRestoreDropsOrphans(t *testing.T) {
	blob := `{"columns":[{"id":"c","title":"Todo"}],"tasks":[{"id":"t1","columnId":"c","content":"ok"},{"id":"t2","columnId":"gone","content":"orphan"}]}`
	b, report := Restore(blob)
	if report.Malformed != nil {
		t.Fatalf("malformed: %v", report.Malformed)
	}
	if diff := cmp.Diff([]Task{{ID: "t2", ColumnID: "gone", Content: "orphan"}}, report.Dropped); diff != "" {
		t.Fatalf("dropped (-want +got):\n%s", diff)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	// the dropped id stays reserved
	if _, used := b.seen["t2"]; !used {
		t.Fatalf("dropped id not reserved")
	}
}

func TestEncodeEmptyBoard(t *testing.T) {
	blob, err := EncodeBoard(NewBoard())
	if err != nil {
		t.Fatal(err)
	}
	if blob != `{"columns":[],"tasks":[]}` {
		t.Fatalf("blob = %s", blob)
	}
}

func TestDecodeAcceptsEmptyTitles(t *testing.T) {
	s, err := Decode([]byte(`{"columns":[{"id":"c","title":""}],"tasks":[{"id":"t","columnId":"c","content":""}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Columns) != 1 || len(s.Tasks) != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
}

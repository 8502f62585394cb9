package docstore

import (
	"errors"
	"testing"
	"time"
)

func TestMatchesRangeIsClosedOpen(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.March, 30, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	q := Query{Range: &Range{Field: "at", Start: start, End: end}}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "start boundary", at: start, want: true},
		{name: "inside", at: start.Add(5 * time.Minute), want: true},
		{name: "end boundary", at: end, want: false},
		{name: "before", at: start.Add(-time.Nanosecond), want: false},
	}
	for _, tc := range cases {
		doc := Document{ID: "a", Fields: map[string]any{"at": tc.at}}
		if got := Matches(doc, q); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMatchesComparesInUTC(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Africa/Johannesburg")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := time.Date(2025, time.June, 1, 10, 0, 0, 0, loc)
	q := Query{Range: &Range{Field: "at", Start: local.UTC(), End: local.UTC().Add(time.Minute)}}
	doc := Document{ID: "a", Fields: map[string]any{"at": local.Format(time.RFC3339Nano)}}
	if !Matches(doc, q) {
		t.Fatalf("expected RFC 3339 local timestamp to match its UTC window")
	}
}

func TestMatchesFilterRequiresField(t *testing.T) {
	t.Parallel()

	q := Query{Filters: []Filter{Eq("started", false)}}
	if Matches(Document{ID: "a", Fields: map[string]any{}}, q) {
		t.Fatalf("absent field must not match an equality filter")
	}
	if !Matches(Document{ID: "a", Fields: map[string]any{"started": false}}, q) {
		t.Fatalf("expected explicit false to match")
	}
	if !Matches(Document{ID: "a", Fields: map[string]any{"n": int64(3)}}, Query{Filters: []Filter{Eq("n", 3)}}) {
		t.Fatalf("expected numeric kinds to compare by value")
	}
}

func TestApplyUpdates(t *testing.T) {
	t.Parallel()

	original := map[string]any{"a": 1, "drop": "x", "history": []any{"one"}}
	updated, err := Apply(original, []FieldUpdate{
		Set("a", 2),
		Delete("drop"),
		Append("history", "two"),
		Append("fresh", "first"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated["a"] != 2 {
		t.Fatalf("expected set to overwrite, got %v", updated["a"])
	}
	if _, ok := updated["drop"]; ok {
		t.Fatalf("expected delete to remove field")
	}
	if got := updated["history"].([]any); len(got) != 2 || got[1] != "two" {
		t.Fatalf("unexpected history %v", got)
	}
	if got := updated["fresh"].([]any); len(got) != 1 {
		t.Fatalf("unexpected fresh array %v", got)
	}
	if len(original["history"].([]any)) != 1 {
		t.Fatalf("apply must not mutate its input")
	}

	if _, err := Apply(map[string]any{"s": "x"}, []FieldUpdate{Append("s", 1)}); err == nil {
		t.Fatalf("expected append onto scalar to fail")
	}
}

func TestCheckBatch(t *testing.T) {
	t.Parallel()

	writes := []Write{UpdateDoc("c", "1", Set("a", true)), UpdateDoc("c", "2", Set("a", true))}
	if err := CheckBatch(writes, 1); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if err := CheckBatch([]Write{{Collection: "c", ID: "1"}}, 10); !errors.Is(err, ErrInvalidWrite) {
		t.Fatalf("expected ErrInvalidWrite, got %v", err)
	}
	if err := CheckBatch(writes, 2); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDocumentAccessors(t *testing.T) {
	t.Parallel()

	doc := Document{ID: "d", Fields: map[string]any{"name": "", "flag": "yes", "ok": true}}
	if got := doc.StringOr("name", "fallback"); got != "fallback" {
		t.Fatalf("empty string should fall back, got %q", got)
	}
	if doc.Flag("flag") {
		t.Fatalf("non-boolean flag should read as false")
	}
	if !doc.Flag("ok") || doc.Flag("missing") {
		t.Fatalf("unexpected flag values")
	}
	if _, ok := doc.Time("missing"); ok {
		t.Fatalf("missing time should report !ok")
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithRunTagsLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx, _ := WithRun(context.Background(), base, "reminder", "run-1")

	Or(ctx, nil).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["job"] != "reminder" || line["run_id"] != "run-1" {
		t.Fatalf("missing run attributes: %v", line)
	}
}

func TestOrFallsBack(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if got := Or(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback logger")
	}
	if got := Or(context.Background(), nil); got != slog.Default() {
		t.Fatal("expected default logger")
	}
}

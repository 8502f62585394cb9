package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCollectorSnapshotReportsRecordedInstruments(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	m := c.Metrics()
	ctx := context.Background()
	m.Matched(ctx, "reminder", 4)
	m.Run(ctx, "reminder", 2*time.Second, nil)
	m.Run(ctx, "auto-close", time.Second, errors.New("boom"))

	points, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	find := func(name string, attrs map[string]string) (Point, bool) {
		for _, p := range points {
			if p.Name != name {
				continue
			}
			match := true
			for k, v := range attrs {
				if p.Attributes[k] != v {
					match = false
				}
			}
			if match {
				return p, true
			}
		}
		return Point{}, false
	}

	if p, ok := find("reconciler.records.matched", map[string]string{"job": "reminder"}); !ok || p.Value != 4 {
		t.Fatalf("expected matched=4 for reminder, got %+v (found=%v)", p, ok)
	}
	if p, ok := find("reconciler.runs", map[string]string{"job": "auto-close", "status": "error"}); !ok || p.Value != 1 {
		t.Fatalf("expected one failed auto-close run, got %+v (found=%v)", p, ok)
	}
	if p, ok := find("reconciler.run.duration", map[string]string{"job": "reminder"}); !ok || p.Count != 1 || p.Value != 2 {
		t.Fatalf("expected one 2s reminder duration sample, got %+v (found=%v)", p, ok)
	}

	for i := 1; i < len(points); i++ {
		if points[i-1].Name > points[i].Name {
			t.Fatalf("expected points sorted by name, got %q before %q", points[i-1].Name, points[i].Name)
		}
	}
}

func TestCollectorSnapshotAfterShutdownFails(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error after shutdown")
	}
}

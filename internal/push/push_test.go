package push

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDeliveryErrorMatchesSentinels(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("send: %w", Fail(KindTokenInvalid, errors.New("UNREGISTERED")))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid match")
	}
	if errors.Is(err, ErrTransient) {
		t.Fatalf("unexpected transient match")
	}
	if KindOf(err) != KindTokenInvalid {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	t.Parallel()

	if KindOf(context.DeadlineExceeded) != KindTransient {
		t.Fatalf("context errors should be transient")
	}
	if KindOf(nil) != "" {
		t.Fatalf("nil error has no kind")
	}
}

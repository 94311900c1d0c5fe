package memory

import (
	"context"
	"testing"
)

func TestStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := New()
	v := []byte("2025-03")
	if err := s.SaveBlobs(ctx, "local", map[string][]byte{"month": v}); err != nil {
		t.Fatalf("SaveBlobs: %v", err)
	}
	v[0] = 'X'

	got, _ := s.LoadBlobs(ctx, "local")
	if string(got["month"]) != "2025-03" {
		t.Fatalf("month = %q", got["month"])
	}
	got["month"][0] = 'Y'
	again, _ := s.LoadBlobs(ctx, "local")
	if string(again["month"]) != "2025-03" {
		t.Fatalf("stored value mutated: %q", again["month"])
	}
}

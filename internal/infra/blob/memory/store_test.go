package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"pokeindex/internal/blob/core"
)

func TestMetadataIsCopied(t *testing.T) {
	s := New()
	md := map[string]string{"k": "v"}
	if _, err := s.Put(context.Background(), "a", strings.NewReader("x"), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["k"] = "changed"
	info, err := s.Head(context.Background(), "a")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Metadata["k"] != "v" {
		t.Fatalf("store aliased caller metadata")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "a", strings.NewReader("abc"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, rc, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	b[0] = 'z'
	_, rc2, _ := s.Get(context.Background(), "a")
	b2, _ := io.ReadAll(rc2)
	if string(b2) != "abc" {
		t.Fatalf("stored bytes mutated: %q", b2)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
	if _, err := s.PresignURL(context.Background(), "a", core.SignedURLOptions{}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

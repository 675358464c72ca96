package backend

import (
	"context"
	"testing"
)

func TestCallableRegistry_RegisterAndGet(t *testing.T) {
	reg := NewCallableRegistry()

	// callables may return any result shape, not just maps
	reg.Register("answer", func(ctx context.Context, args map[string]any) (any, error) {
		return 42, nil
	})

	fn, err := reg.Get("answer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	result, err := fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
}

func TestCallableRegistry_UnknownName(t *testing.T) {
	reg := NewCallableRegistry()
	if _, err := reg.Get("missing"); err == nil {
		t.Fatal("expected error for unregistered callable")
	}
}

func TestCallableRegistry_List(t *testing.T) {
	reg := NewCallableRegistry()
	reg.Register("b", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })
	reg.Register("a", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })

	names := reg.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected sorted [a b], got %v", names)
	}
}

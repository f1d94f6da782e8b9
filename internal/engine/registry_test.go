package engine

import (
	"context"
	"testing"

	"github.com/jpequegn/testguard/internal/protocol"
)

type stubAdapter struct {
	prefix string
}

func (s *stubAdapter) CanHandle(assembly string) bool { return len(assembly) >= len(s.prefix) && assembly[:len(s.prefix)] == s.prefix }
func (s *stubAdapter) Discover(ctx context.Context, assembly string) ([]protocol.DiscoveredTest, error) {
	return nil, nil
}
func (s *stubAdapter) Run(ctx context.Context, assembly string, tests []string) (<-chan protocol.Message, error) {
	return nil, nil
}

func TestRegistry_ResolvesFirstMatchingAdapter(t *testing.T) {
	r := NewRegistry()
	r.RegisterAdapter("go", &stubAdapter{prefix: "go:"})
	r.RegisterAdapter("node", &stubAdapter{prefix: "node:"})

	a, err := r.GetAdapter("node:pkg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.(*stubAdapter).prefix != "node:" {
		t.Errorf("resolved wrong adapter: %+v", a)
	}
}

func TestRegistry_NoMatchReturnsError(t *testing.T) {
	r := NewRegistry()
	r.RegisterAdapter("go", &stubAdapter{prefix: "go:"})

	_, err := r.GetAdapter("rust:pkg")
	if err == nil {
		t.Fatal("expected error for unhandled assembly")
	}
}

func TestGoTestAdapter_CanHandle(t *testing.T) {
	a := NewGoTestAdapter()
	cases := map[string]bool{
		"./...": true,
		"github.com/acme/widget/internal/store": true,
		"widget": false,
	}
	for assembly, want := range cases {
		if got := a.CanHandle(assembly); got != want {
			t.Errorf("CanHandle(%q) = %v, want %v", assembly, got, want)
		}
	}
}

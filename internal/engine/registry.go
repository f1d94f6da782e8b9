package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/jpequegn/testguard/internal/protocol"
)

// Adapter drives one test-running toolchain's discovery and execution,
// translating its native output into protocol messages. Implementations
// must be safe for concurrent use only insofar as the worker binary never
// calls Run twice concurrently on the same Adapter; one worker process
// runs one batch at a time.
type Adapter interface {
	// CanHandle reports whether this adapter knows how to run the given
	// assembly (a package path, project directory, or similar unit the
	// worker was told to discover/run).
	CanHandle(assembly string) bool

	// Discover lists every test identifier within assembly without
	// running it.
	Discover(ctx context.Context, assembly string) ([]protocol.DiscoveredTest, error)

	// Run executes tests (all of assembly if tests is empty) and streams
	// Started/Passed/Failed/Skipped/Output events terminated by exactly
	// one CompletedEvent. The returned channel is closed after the
	// terminal event.
	Run(ctx context.Context, assembly string, tests []string) (<-chan protocol.Message, error)
}

// Registry resolves an assembly to the adapter willing to handle it.
type Registry struct {
	mu       sync.RWMutex
	adapters []namedAdapter
}

type namedAdapter struct {
	name    string
	adapter Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterAdapter adds an adapter under name, checked in registration
// order by GetAdapter.
func (r *Registry) RegisterAdapter(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, namedAdapter{name: name, adapter: a})
}

// GetAdapter returns the first registered adapter that can handle
// assembly.
func (r *Registry) GetAdapter(assembly string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, na := range r.adapters {
		if na.adapter.CanHandle(assembly) {
			return na.adapter, nil
		}
	}
	return nil, fmt.Errorf("engine: no adapter registered for assembly: %s", assembly)
}

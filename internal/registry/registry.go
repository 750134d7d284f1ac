// ABOUTME: Resolves agent names to runtime identifiers with a process-lifetime cache.
// ABOUTME: Read-through over a pluggable key-value source; entries are never evicted.

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotConfigured indicates no resolution source is configured for the name.
var ErrNotConfigured = errors.New("no runtime source configured")

// ErrNotFound indicates the backing lookup has no value for the name.
var ErrNotFound = errors.New("agent runtime not found")

// Source performs the backing lookup for an agent name, returning the
// opaque runtime identifier. Absence must be reported as ErrNotFound
// (wrapped or bare) so callers can distinguish it from an unreachable
// source.
type Source interface {
	Lookup(ctx context.Context, agentName string) (string, error)
}

// Registry caches runtime identifiers per agent name for the lifetime of
// the process. Entries are never invalidated: if the backing value changes
// while the process runs, requests keep targeting the cached identifier
// until restart.
type Registry struct {
	source Source
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a Registry over the given source. A nil source is permitted;
// every resolution then fails with ErrNotConfigured.
func New(source Source, logger *slog.Logger) *Registry {
	return &Registry{
		source: source,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Resolve returns the runtime identifier for agentName, performing the
// backing lookup at most once per name on the success path. Concurrent
// cold resolutions may both hit the source; the lookup is idempotent and
// the first stored value wins.
func (r *Registry) Resolve(ctx context.Context, agentName string) (string, error) {
	r.mu.RLock()
	id, ok := r.cache[agentName]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	if r.source == nil {
		return "", fmt.Errorf("%w for agent %q", ErrNotConfigured, agentName)
	}

	id, err := r.source.Lookup(ctx, agentName)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if existing, ok := r.cache[agentName]; ok {
		id = existing
	} else {
		r.cache[agentName] = id
	}
	r.mu.Unlock()

	r.logger.Info("resolved agent runtime", "agent", agentName, "runtime_id", id)
	return id, nil
}

// Forget drops the cached entry for agentName so the next resolution hits
// the source again. Not used on any request path; operator escape hatch.
func (r *Registry) Forget(agentName string) {
	r.mu.Lock()
	delete(r.cache, agentName)
	r.mu.Unlock()
}

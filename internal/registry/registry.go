// Package registry holds the static catalog of specialist agents.
package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for catalog lookups.
var (
	// ErrUnknownAgent means the agent id is not in the catalog.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrUnavailable means the catalog could not be loaded. All dispatch
	// fails closed while this condition holds.
	ErrUnavailable = errors.New("registry unavailable")
)

// AgentDescriptor describes one specialist agent. Descriptors are
// immutable after load; lookups return copies, never shared pointers.
type AgentDescriptor struct {
	ID           string   `yaml:"id"`
	DisplayName  string   `yaml:"display_name"`
	Endpoint     string   `yaml:"endpoint"`
	Capabilities []string `yaml:"capabilities"`
}

// HasCapability reports whether the agent declares the given capability tag.
func (d AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// catalogFile is the on-disk catalog format: a flat list of records.
type catalogFile struct {
	Agents []AgentDescriptor `yaml:"agents"`
}

// Registry is the process-lifetime agent catalog cache. It is safe for
// concurrent reads; the catalog is loaded at most once until invalidated.
type Registry struct {
	path string

	mu      sync.RWMutex
	agents  map[string]AgentDescriptor
	loaded  bool
	loadErr error
}

// New creates a registry backed by the catalog file at path. The catalog
// is loaded lazily on first use.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Load reads and caches the catalog. On read or parse failure the cache
// is left empty and ErrUnavailable is returned; callers must treat every
// subsequent lookup as "unknown agent" until invalidation.
func (r *Registry) Load() ([]AgentDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	return r.allLocked(), nil
}

// loadLocked populates the cache if it has not been loaded yet.
// Callers must hold r.mu for writing.
func (r *Registry) loadLocked() error {
	if r.loaded {
		return r.loadErr
	}
	r.loaded = true
	r.agents = map[string]AgentDescriptor{}

	data, err := os.ReadFile(r.path)
	if err != nil {
		r.loadErr = fmt.Errorf("%w: read %s: %v", ErrUnavailable, r.path, err)
		return r.loadErr
	}

	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		r.loadErr = fmt.Errorf("%w: parse %s: %v", ErrUnavailable, r.path, err)
		return r.loadErr
	}

	for _, a := range catalog.Agents {
		if a.ID == "" {
			r.agents = map[string]AgentDescriptor{}
			r.loadErr = fmt.Errorf("%w: catalog entry missing id", ErrUnavailable)
			return r.loadErr
		}
		if _, dup := r.agents[a.ID]; dup {
			r.agents = map[string]AgentDescriptor{}
			r.loadErr = fmt.Errorf("%w: duplicate agent id %q", ErrUnavailable, a.ID)
			return r.loadErr
		}
		r.agents[a.ID] = a
	}
	r.loadErr = nil
	return nil
}

// Resolve looks up an agent by exact id. No fuzzy matching. Returns
// ErrUnknownAgent for a bad id and ErrUnavailable if the catalog could
// not be loaded.
func (r *Registry) Resolve(agentID string) (AgentDescriptor, error) {
	r.mu.Lock()
	loadErr := r.loadLocked()
	var desc AgentDescriptor
	var ok bool
	if loadErr == nil {
		desc, ok = r.agents[agentID]
	}
	r.mu.Unlock()

	if loadErr != nil {
		return AgentDescriptor{}, loadErr
	}
	if !ok {
		return AgentDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return desc, nil
}

// All returns every cached descriptor sorted by id.
func (r *Registry) All() ([]AgentDescriptor, error) {
	return r.Load()
}

// allLocked returns the cached descriptors sorted by id.
// Callers must hold r.mu.
func (r *Registry) allLocked() []AgentDescriptor {
	out := make([]AgentDescriptor, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invalidate drops the cache so the next lookup re-reads the catalog.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.loadErr = nil
	r.agents = nil
	r.mu.Unlock()
}

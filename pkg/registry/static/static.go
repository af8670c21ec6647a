package static

import (
    "sync"

    "github.com/amirimatin/go-ndconsensus/pkg/registry"
)

// Registry is a fixed, in-memory participant population. It is the natural
// choice for embedded use and for deterministic tests; membership changes go
// through Set, which bumps the version.
type Registry struct {
    mu      sync.RWMutex
    version uint64
    parts   []registry.ParticipantInfo
}

// New constructs a registry from participant IDs. Addresses and meta are left
// empty; use NewWithParticipants when they matter.
func New(ids ...string) *Registry {
    parts := make([]registry.ParticipantInfo, 0, len(ids))
    for _, id := range ids {
        if id == "" { continue }
        parts = append(parts, registry.ParticipantInfo{ID: id})
    }
    return &Registry{version: 1, parts: parts}
}

// NewWithParticipants constructs a registry from full participant records.
func NewWithParticipants(parts []registry.ParticipantInfo) *Registry {
    r := &Registry{version: 1}
    r.parts = copyParts(parts)
    return r
}

// Version reports the population version.
func (r *Registry) Version() uint64 {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.version
}

// Participants returns a defensive copy of the population.
func (r *Registry) Participants() []registry.ParticipantInfo {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return copyParts(r.parts)
}

// Set replaces the population and bumps the version.
func (r *Registry) Set(parts []registry.ParticipantInfo) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.parts = copyParts(parts)
    r.version++
}

func copyParts(parts []registry.ParticipantInfo) []registry.ParticipantInfo {
    out := make([]registry.ParticipantInfo, len(parts))
    for i, p := range parts {
        cp := p
        if p.Meta != nil {
            cp.Meta = make(map[string]string, len(p.Meta))
            for k, v := range p.Meta {
                cp.Meta[k] = v
            }
        }
        out[i] = cp
    }
    return out
}

var _ registry.Registry = (*Registry)(nil)

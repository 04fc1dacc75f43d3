// Package display abstracts the destination surfaces that command output
// is routed to. The core resolves surfaces by full name and never
// creates one on its own.
package display

import (
	"sort"
	"sync"
)

// Surface is a destination that can show tagged lines and accept
// re-injected command lines.
type Surface interface {
	FullName() string
	Print(tags []string, message string)
	Command(line string)
}

// Registry resolves surface full names to live surfaces. It also owns
// the core surface, the fallback destination for default tagged display.
type Registry struct {
	surfaces map[string]Surface
	core     Surface
	mu       sync.RWMutex
}

// NewRegistry creates a surface registry with the given core surface.
func NewRegistry(core Surface) *Registry {
	r := &Registry{
		surfaces: make(map[string]Surface),
		core:     core,
	}
	if core != nil {
		r.surfaces[core.FullName()] = core
	}
	return r
}

// Register adds a surface, replacing any surface with the same full name.
func (r *Registry) Register(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[s.FullName()] = s
}

// Unregister removes a surface by full name. The core surface cannot be
// removed.
func (r *Registry) Unregister(fullName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.core != nil && fullName == r.core.FullName() {
		return
	}
	delete(r.surfaces, fullName)
}

// Find resolves a full name by exact match. Returns nil when the surface
// does not exist.
func (r *Registry) Find(fullName string) Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.surfaces[fullName]
}

// Core returns the fallback surface.
func (r *Registry) Core() Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.core
}

// List returns all registered surfaces ordered by full name.
func (r *Registry) List() []Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName() < result[j].FullName()
	})
	return result
}

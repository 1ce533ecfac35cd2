package chat

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	ws       *Workspace
	lastUsed time.Time
}

// Registry holds one live Workspace per profile and evicts idle ones
type Registry struct {
	mu         sync.Mutex
	deps       Deps
	idleTTL    time.Duration
	workspaces map[string]*entry
	// holds counts open streams per profile; held profiles are never evicted
	holds map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	return &Registry{
		deps:       deps.withDefaults(),
		idleTTL:    idleTTL,
		workspaces: make(map[string]*entry),
		holds:      make(map[string]int),
	}
}

// Get returns the profile's workspace, loading it on first use
func (r *Registry) Get(ctx context.Context, profileID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.deps.Now()
	if e, ok := r.workspaces[profileID]; ok {
		e.lastUsed = now
		return e.ws
	}

	ws := NewWorkspace(context.WithoutCancel(ctx), profileID, r.deps)
	r.workspaces[profileID] = &entry{ws: ws, lastUsed: now}
	r.deps.Metrics.WorkspaceOpened(ctx)
	return ws
}

// Peek returns the workspace without loading or touching it
func (r *Registry) Peek(profileID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.workspaces[profileID]
	if !ok {
		return nil, false
	}
	return e.ws, true
}

// Hold keeps the profile's workspace from idle eviction until release is
// called. Release restarts the idle timer and is safe to call twice.
func (r *Registry) Hold(profileID string) (release func()) {
	r.mu.Lock()
	r.holds[profileID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			if r.holds[profileID]--; r.holds[profileID] <= 0 {
				delete(r.holds, profileID)
			}
			if e, ok := r.workspaces[profileID]; ok {
				e.lastUsed = r.deps.Now()
			}
		})
	}
}

// Len returns the number of live workspaces
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Run evicts idle workspaces every period until ctx is done
func (r *Registry) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(ctx); n > 0 {
				r.deps.Log.Info("Evicted idle workspaces", "count", n)
			}
		}
	}
}

// EvictIdle closes workspaces unused for longer than the idle TTL.
// Held workspaces and those with a running generation are kept.
func (r *Registry) EvictIdle(ctx context.Context) int {
	now := r.deps.Now()

	r.mu.Lock()
	var evicted []*Workspace
	for id, e := range r.workspaces {
		if now.Sub(e.lastUsed) <= r.idleTTL || r.holds[id] > 0 || e.ws.IsGenerating() {
			continue
		}
		evicted = append(evicted, e.ws)
		delete(r.workspaces, id)
	}
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.Close(ctx)
		r.deps.Metrics.WorkspaceClosed(ctx)
	}
	return len(evicted)
}

// Close closes every workspace
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.ws.Close(ctx)
		r.deps.Metrics.WorkspaceClosed(ctx)
	}
}

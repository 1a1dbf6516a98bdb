package monitor

import (
	"context"
	"sync"

	"showbot/internal/storage"
	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

type AddResult int

const (
	Added AddResult = iota
	AlreadyTracked
)

type RemoveResult int

const (
	Removed RemoveResult = iota
	NotTracked
)

type subscription struct {
	enabled  bool
	projects []string // insertion order
	target   kit.ChatTarget
}

// Registry is the subscription store: the single source of truth for
// who watches what. Mutations persist synchronously; a persistence
// failure is logged and does not roll back the in-memory change.
//
// Contexts are created lazily and never deleted, only disabled.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*subscription

	store storage.Store // nil when storage is disabled
	log   logx.Logger
}

func NewRegistry(store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		subs:  map[string]*subscription{},
		store: store,
		log:   log,
	}
}

// Load hydrates the registry from storage, then enables any seed
// contexts that are not already present.
func (r *Registry) Load(ctx context.Context, seed []string) error {
	var doc *storage.Document
	if r.store != nil {
		var err error
		doc, err = r.store.Load(ctx)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if doc != nil {
		for key, rec := range doc.Contexts {
			r.subs[key] = &subscription{
				enabled:  rec.Enabled,
				projects: append([]string(nil), rec.Projects...),
				target:   kit.ChatTarget{ChatID: rec.ChatID, ThreadID: rec.ThreadID},
			}
		}
	}
	for _, key := range seed {
		if _, ok := r.subs[key]; !ok {
			r.subs[key] = &subscription{enabled: true}
		}
	}
	return nil
}

func (r *Registry) ensureLocked(key string) *subscription {
	s, ok := r.subs[key]
	if !ok {
		s = &subscription{}
		r.subs[key] = s
	}
	return s
}

func (r *Registry) SetEnabled(ctx context.Context, key string, enabled bool) {
	r.mu.Lock()
	r.ensureLocked(key).enabled = enabled
	r.persistLocked(ctx)
	r.mu.Unlock()
}

func (r *Registry) Enabled(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[key]
	return ok && s.enabled
}

// AddProject tracks a project for the context. The id must be a
// digits-only positive integer string and monitoring must be on.
func (r *Registry) AddProject(ctx context.Context, key, projectID string) (AddResult, error) {
	if !validProjectID(projectID) {
		return 0, ErrInvalidProjectID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[key]
	if !ok || !s.enabled {
		return 0, ErrNotEnabled
	}
	for _, p := range s.projects {
		if p == projectID {
			return AlreadyTracked, nil
		}
	}
	s.projects = append(s.projects, projectID)
	r.persistLocked(ctx)
	return Added, nil
}

func (r *Registry) RemoveProject(ctx context.Context, key, projectID string) RemoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[key]
	if !ok {
		return NotTracked
	}
	for i, p := range s.projects {
		if p == projectID {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			r.persistLocked(ctx)
			return Removed
		}
	}
	return NotTracked
}

// ListProjects returns the tracked ids in insertion order.
func (r *Registry) ListProjects(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[key]
	if !ok {
		return nil
	}
	return append([]string(nil), s.projects...)
}

// RecordDeliveryAddress refreshes the context's reachable chat target.
// Called on every command that proves the context is live.
func (r *Registry) RecordDeliveryAddress(ctx context.Context, key string, target kit.ChatTarget) {
	if target.ChatID == 0 {
		return
	}
	r.mu.Lock()
	s := r.ensureLocked(key)
	if s.target != target {
		s.target = target
		r.persistLocked(ctx)
	}
	r.mu.Unlock()
}

// SnapshotEnabled returns a point-in-time copy of every enabled
// subscription. The copy is detached so a long poll cycle is unaffected
// by concurrent mutation.
func (r *Registry) SnapshotEnabled() map[string]ContextView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ContextView, len(r.subs))
	for key, s := range r.subs {
		if !s.enabled {
			continue
		}
		out[key] = ContextView{
			Projects: append([]string(nil), s.projects...),
			Target:   s.target,
		}
	}
	return out
}

func (r *Registry) persistLocked(ctx context.Context) {
	if r.store == nil {
		return
	}
	doc := storage.EmptyDocument()
	for key, s := range r.subs {
		doc.Contexts[key] = storage.Record{
			Enabled:  s.enabled,
			Projects: append([]string(nil), s.projects...),
			ChatID:   s.target.ChatID,
			ThreadID: s.target.ThreadID,
		}
	}
	if err := r.store.Save(ctx, doc); err != nil {
		r.log.Warn("subscription save failed", logx.Err(err))
	}
}

func validProjectID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

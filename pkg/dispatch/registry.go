package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RegistryEntry holds everything a servable tenant needs in this process: the
// outbound client handle, the inbound dispatcher and the processing queue.
type RegistryEntry struct {
	Client     Client
	Dispatcher Dispatcher
	Queue      *Queue
}

// Registry is the single source of truth for "is this tenant currently
// servable in this process". It exclusively owns each entry's queue lifecycle.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*RegistryEntry
	log     *logrus.Logger
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*RegistryEntry),
		log:     log,
	}
}

// Register starts the entry's queue and makes the tenant servable. When the
// tenant is already registered the existing entry is returned untouched, so
// concurrent lazy registration cannot produce two worker pools.
func (r *Registry) Register(ctx context.Context, tenantID uuid.UUID, entry *RegistryEntry) *RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[tenantID]; ok {
		return existing
	}
	entry.Queue.Start(ctx)
	r.entries[tenantID] = entry
	r.log.WithField("tenant", tenantID.String()).Info("bot registered")
	return entry
}

// Unregister stops (drains) the tenant's queue before removing the entry, so
// in-flight work is not silently dropped.
func (r *Registry) Unregister(ctx context.Context, tenantID uuid.UUID) {
	r.mu.RLock()
	entry, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.Queue.Stop(ctx)

	r.mu.Lock()
	delete(r.entries, tenantID)
	r.mu.Unlock()
	r.log.WithField("tenant", tenantID.String()).Info("bot unregistered")
}

func (r *Registry) Lookup(tenantID uuid.UUID) (*RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[tenantID]
	return entry, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Shutdown unregisters every tenant, draining each queue in turn.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Unregister(ctx, id)
	}
}

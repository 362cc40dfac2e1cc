package routes

import (
	"sync"

	"github.com/travigo/livebus/pkg/vehiclestate"
)

// Fleet holds the most recent snapshot broadcast by the vehicle state store
type Fleet struct {
	mu       sync.RWMutex
	snapshot vehiclestate.Snapshot
}

// NewFleet seeds the view from the store and keeps it current. The returned
// func stops following the store.
func NewFleet(store *vehiclestate.Store) (*Fleet, func()) {
	fleet := &Fleet{}
	unsubscribe := store.Subscribe(fleet.Update)
	fleet.Update(store.Snapshot())

	return fleet, unsubscribe
}

// Update keeps the newest snapshot. Snapshots may arrive from several
// goroutines so older versions are ignored.
func (f *Fleet) Update(snapshot vehiclestate.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snapshot.Version < f.snapshot.Version {
		return
	}
	f.snapshot = snapshot
}

func (f *Fleet) Snapshot() vehiclestate.Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.snapshot
}

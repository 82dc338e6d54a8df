// Package runtime owns the in-memory coordination state of the relay:
// the presence directory and the workers that move events between
// connections.
package runtime

import (
	"dm-relay/contract"
	"dm-relay/domain"
	"sort"
	"sync"
)

type session struct {
	handle domain.ConnID
	sink   contract.EventSink
}

// Directory maps each online identity to its single active connection.
// It is the only mutable shared resource of the relay core; every
// mutation happens inside one short mutex-held critical section, with
// no I/O under the lock.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]session // identity -> active connection
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]session)}
}

// Register associates an identity with the given connection, replacing
// any prior association for that identity. The superseded connection is
// left open; it simply stops receiving directed traffic. If the handle
// itself was previously bound to another identity, that binding is
// dropped so a handle never maps to two identities.
// Returns the fresh online snapshot, computed before the lock is released.
func (d *Directory) Register(identity string, handle domain.ConnID, sink contract.EventSink) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, s := range d.entries {
		if s.handle == handle && id != identity {
			delete(d.entries, id)
		}
	}
	d.entries[identity] = session{handle: handle, sink: sink}

	return d.snapshotLocked()
}

// Unregister removes the entry whose handle matches, if any. The lookup
// is a linear scan over current entries; connection counts stay small
// enough that correctness matters more than O(1) here. A connection
// that was superseded earlier no longer owns an entry, so its close is
// a no-op.
// Returns the freed identity, the fresh snapshot, and whether an entry
// was removed.
func (d *Directory) Unregister(handle domain.ConnID) (string, []string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for identity, s := range d.entries {
		if s.handle == handle {
			delete(d.entries, identity)
			return identity, d.snapshotLocked(), true
		}
	}
	return "", nil, false
}

// Lookup resolves an identity to its connection sink. A miss is normal
// control flow: it means the recipient is offline.
func (d *Directory) Lookup(identity string) (contract.EventSink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.entries[identity]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// Snapshot returns all currently online identities, sorted.
func (d *Directory) Snapshot() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Directory) snapshotLocked() []string {
	online := make([]string, 0, len(d.entries))
	for identity := range d.entries {
		online = append(online, identity)
	}
	sort.Strings(online)
	return online
}

// Package observability aggregates runtime counters for logging and
// the periodic reporter worker.
package observability

import (
	"sync/atomic"
)

// Stats holds the relay's live counters. All fields are atomic: they
// are bumped from per-connection goroutines and read by the reporter.
type Stats struct {
	openConnections  atomic.Int64
	registeredUsers  atomic.Int64
	messagesRelayed  atomic.Uint64
	messagesReplayed atomic.Uint64
	eventsDropped    atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) ConnOpened()      { s.openConnections.Add(1) }
func (s *Stats) ConnClosed()      { s.openConnections.Add(-1) }
func (s *Stats) MessageRelayed()  { s.messagesRelayed.Add(1) }
func (s *Stats) MessageReplayed() { s.messagesReplayed.Add(1) }
func (s *Stats) EventDropped()    { s.eventsDropped.Add(1) }

// SetOnline records the size of the latest presence snapshot. A gauge
// rather than a counter pair: a registration that supersedes another
// connection does not change how many identities are online.
func (s *Stats) SetOnline(n int) { s.registeredUsers.Store(int64(n)) }

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	OpenConnections  int64
	RegisteredUsers  int64
	MessagesRelayed  uint64
	MessagesReplayed uint64
	EventsDropped    uint64
}

func (s *Stats) GetLatest() Snapshot {
	return Snapshot{
		OpenConnections:  s.openConnections.Load(),
		RegisteredUsers:  s.registeredUsers.Load(),
		MessagesRelayed:  s.messagesRelayed.Load(),
		MessagesReplayed: s.messagesReplayed.Load(),
		EventsDropped:    s.eventsDropped.Load(),
	}
}

package runtime

import (
	"context"
	"testing"

	"dm-relay/domain"
	"dm-relay/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.Event) error {
	return nil
}

func newHandle() domain.ConnID { return domain.ConnID(uuid.NewString()) }

func TestDirectory_Register_One_Identity(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()
	handle := newHandle()
	sink := Sink{name: "alice-conn"}

	// Given nobody is online
	req.Empty(directory.Snapshot())

	// When an identity registers
	online := directory.Register("alice", handle, sink)

	// Then the snapshot holds exactly that identity
	req.Equal([]string{"alice"}, online)
	req.Equal([]string{"alice"}, directory.Snapshot())

	got, ok := directory.Lookup("alice")
	req.True(ok)
	req.Equal(sink, got)
}

func TestDirectory_Register_Same_Identity_Supersedes(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()
	first := newHandle()
	second := newHandle()

	// Given two connections both register "carol"
	directory.Register("carol", first, Sink{name: "first"})
	online := directory.Register("carol", second, Sink{name: "second"})

	// Then the directory holds exactly one entry, pointing at the second connection
	req.Equal([]string{"carol"}, online)
	got, ok := directory.Lookup("carol")
	req.True(ok)
	req.Equal(Sink{name: "second"}, got)

	// And closing the superseded connection frees nothing
	_, _, found := directory.Unregister(first)
	req.False(found)
	req.Equal([]string{"carol"}, directory.Snapshot())
}

func TestDirectory_Register_Same_Handle_New_Identity(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()
	handle := newHandle()

	// Given a connection registered as "alice"
	directory.Register("alice", handle, Sink{})

	// When the same connection registers as "bob"
	online := directory.Register("bob", handle, Sink{})

	// Then the handle maps to a single identity
	req.Equal([]string{"bob"}, online)
	_, ok := directory.Lookup("alice")
	req.False(ok)
}

func TestDirectory_Unregister_Removes_Only_Matching_Handle(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()
	aliceHandle := newHandle()
	bobHandle := newHandle()

	directory.Register("alice", aliceHandle, Sink{name: "alice"})
	directory.Register("bob", bobHandle, Sink{name: "bob"})

	// When alice's connection closes
	freed, online, found := directory.Unregister(aliceHandle)

	// Then exactly her entry is gone and the snapshot excludes only her
	req.True(found)
	req.Equal("alice", freed)
	req.Equal([]string{"bob"}, online)

	got, ok := directory.Lookup("bob")
	req.True(ok)
	req.Equal(Sink{name: "bob"}, got)
}

func TestDirectory_Unregister_Unknown_Handle(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()
	directory.Register("alice", newHandle(), Sink{})

	// An anonymous connection closing frees nothing
	freed, online, found := directory.Unregister(newHandle())
	req.False(found)
	req.Empty(freed)
	req.Nil(online)
	req.Equal([]string{"alice"}, directory.Snapshot())
}

func TestDirectory_Snapshot_Tracks_Register_Disconnect_Sequences(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()

	handles := map[string]domain.ConnID{}
	for _, identity := range []string{"alice", "bob", "carol"} {
		h := newHandle()
		handles[identity] = h
		directory.Register(identity, h, Sink{name: identity})
	}
	req.Equal([]string{"alice", "bob", "carol"}, directory.Snapshot())

	directory.Unregister(handles["bob"])
	req.Equal([]string{"alice", "carol"}, directory.Snapshot())

	directory.Unregister(handles["alice"])
	directory.Unregister(handles["carol"])
	req.Empty(directory.Snapshot())
}

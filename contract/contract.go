//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"dm-relay/domain"
	"dm-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one connection's outbound channel. Consume must never
// block the caller: delivery is best-effort and a failed consume is
// not an error the relay acts on.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IDirectory is the presence directory: the single source of truth for
// who is online and on which connection. Register and Unregister return
// the fresh snapshot so callers can broadcast without re-locking.
type IDirectory interface {
	Register(identity string, handle domain.ConnID, sink EventSink) []string
	Unregister(handle domain.ConnID) (string, []string, bool)
	Lookup(identity string) (EventSink, bool)
	Snapshot() []string
}

// SinkProvider exposes the sinks of all currently open connections,
// identified or not. Broadcast events go to every one of them.
type SinkProvider interface {
	Sinks() []EventSink
}

type IRelay interface {
	Send(ctx context.Context, senderID, recipientID, content string) (domain.Message, error)
	Replay(ctx context.Context, identity string, sink EventSink) (int, error)
	History(userA, userB string) ([]domain.Message, error)
}

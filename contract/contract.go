//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"support-hub/domain"
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

// Session is the live-connection handle held by the presence registry.
// Send must be bounded: a slow or dead peer returns an error instead of
// blocking the caller.
type Session interface {
	ID() string
	Identity() string
	Role() domain.Role
	Send(ctx context.Context, f domain.Frame) error
	Close()
}

type IRegistry interface {
	Register(identity string, role domain.Role, s Session) (displaced Session)
	Lookup(identity string) (Session, bool)
	LookupRole(role domain.Role) []Session
	CountRole(role domain.Role) int
	Subscribe(key domain.Key, s Session)
	Watchers(key domain.Key) []Session
	Unregister(s Session)
}

// Target selects the live recipients of a delivery: a specific identity,
// a whole role group, or both.
type Target struct {
	Identity string
	Role     domain.Role
}

type IRouter interface {
	Deliver(ctx context.Context, target Target, key domain.Key, entry domain.Entry) error
	PushEphemeral(ctx context.Context, target Target, key domain.Key, frame domain.Frame)
}

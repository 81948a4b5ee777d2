package repository

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by every lookup failure of this package.
var ErrNotFound = errors.New("not found")

var (
	ErrGradeNotFound   = fmt.Errorf("grade %w", ErrNotFound)
	ErrClassNotFound   = fmt.Errorf("class %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
)

// ChangeKind names the entity touched by a mutation.
type ChangeKind string

const (
	ChangeGrade      ChangeKind = "grade"
	ChangeClass      ChangeKind = "class"
	ChangeStudent    ChangeKind = "student"
	ChangeAttendance ChangeKind = "attendance"
)

// ChangeOp names the mutation.
type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
)

// ChangeEvent is delivered to subscribers after a mutation is durable.
type ChangeEvent struct {
	Kind ChangeKind `json:"kind"`
	Op   ChangeOp   `json:"op"`
	ID   string     `json:"id"`
}

// Listener receives change events. It runs synchronously on the writer's
// goroutine and must not call back into a mutating repository method.
type Listener func(ChangeEvent)

type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Listener
}

// Subscribe registers fn and returns a function removing it.
func (n *notifier) Subscribe(fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]Listener)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) publish(events ...ChangeEvent) {
	n.mu.Lock()
	subs := make([]Listener, 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// IDGenerator produces entity identifiers.
type IDGenerator func() string

func newUUID() string {
	return uuid.NewString()
}

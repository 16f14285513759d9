// Package events fans station state changes out to observers (feedback,
// terminal UI) after the change has been committed.
package events

import (
	"log/slog"
	"sync"

	"github.com/BearBump/PassportDesk/internal/models"
)

type Kind string

const (
	KindAccepted       Kind = "accepted"
	KindDuplicate      Kind = "duplicate"
	KindRejected       Kind = "rejected"
	KindRemoved        Kind = "removed"
	KindRestored       Kind = "restored"
	KindDispatched     Kind = "dispatched"
	KindPartialFailure Kind = "partial_failure"
	KindDispatchFailed Kind = "dispatch_failed"
	KindValidation     Kind = "validation_failed"
	KindRefocus        Kind = "refocus"
)

type Event struct {
	Kind  Kind
	Item  *models.ScannedItem
	Raw   string
	Count int
	Err   error
}

type Observer interface {
	OnEvent(e Event)
}

type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Bus delivers events synchronously to every subscriber. A panicking observer
// is logged and skipped; it never reaches the publisher.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewBus(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

func (b *Bus) Subscribe(o Observer) {
	if b == nil || o == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	obs := make([]Observer, len(b.observers))
	copy(obs, b.observers)
	b.mu.RUnlock()

	for _, o := range obs {
		deliver(o, e)
	}
}

func deliver(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("event observer panicked", "kind", string(e.Kind), "panic", r)
		}
	}()
	o.OnEvent(e)
}

package domain

import (
	"sync"
	"time"
)

type Event interface {
	Type() string
	PublishedAt() time.Time
}

// EventSource is anything that buffers domain events until a unit of work collects them.
type EventSource interface {
	PopEvents() []Event
}

type NoCopy struct {
	sync.Mutex
}

type Aggregate struct {
	NoCopy
	events []Event
}

func (a *Aggregate) PopEvents() []Event {
	a.Lock()
	defer a.Unlock()
	events := a.events
	a.events = make([]Event, 0)
	return events
}

func (a *Aggregate) PushEvent(e Event) {
	a.Lock()
	a.events = append(a.events, e)
	a.Unlock()
}

// BaseEvent carries the publish timestamp shared by all events.
type BaseEvent struct {
	At time.Time
}

func (e BaseEvent) PublishedAt() time.Time {
	return e.At
}

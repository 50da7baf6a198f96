package swarm

import (
	"sync/atomic"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

// EventType identifies the kind of swarm event.
type EventType string

const (
	EventSwarmStart         EventType = "swarm:start"
	EventSwarmRouting       EventType = "swarm:routing"
	EventSpecialistStart    EventType = "specialist:start"
	EventSpecialistComplete EventType = "specialist:complete"
	EventSpecialistError    EventType = "specialist:error"
	EventSwarmSynthesis     EventType = "swarm:synthesis"
	EventSwarmComplete      EventType = "swarm:complete"
	EventSwarmError         EventType = "swarm:error"
)

// Event is one entry on the swarm's observer surface. Each event carries the
// minimum context needed to attribute it.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Task         string `json:"task,omitempty"`
	SpecialistID string `json:"specialist_id,omitempty"`

	Decision *models.RoutingDecision   `json:"decision,omitempty"`
	Outcome  *models.SpecialistOutcome `json:"outcome,omitempty"`

	Error string `json:"error,omitempty"`
}

// Observer receives swarm events. Delivery is fire-and-forget: observer
// panics are isolated and never fail the execution.
type Observer interface {
	OnSwarmEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnSwarmEvent implements Observer.
func (f ObserverFunc) OnSwarmEvent(event Event) {
	f(event)
}

// ChanObserver forwards events to a channel without blocking the swarm.
// Events that cannot be delivered immediately are dropped and counted.
type ChanObserver struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewChanObserver creates a channel observer with the given buffer size.
func NewChanObserver(buffer int) *ChanObserver {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanObserver{ch: make(chan Event, buffer)}
}

// OnSwarmEvent implements Observer with a non-blocking send.
func (o *ChanObserver) OnSwarmEvent(event Event) {
	select {
	case o.ch <- event:
	default:
		o.dropped.Add(1)
	}
}

// Events returns the receive side of the channel.
func (o *ChanObserver) Events() <-chan Event {
	return o.ch
}

// Dropped returns how many events were dropped due to a full buffer.
func (o *ChanObserver) Dropped() uint64 {
	return o.dropped.Load()
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// OnSwarmEvent implements Observer.
func (m MultiObserver) OnSwarmEvent(event Event) {
	for _, o := range m {
		if o != nil {
			o.OnSwarmEvent(event)
		}
	}
}

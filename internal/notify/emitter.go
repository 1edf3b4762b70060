// Package notify provides topic-based change notifications.
//
// Notifications carry no data. Listeners re-read the authoritative state
// from the store after being woken, so a missed or coalesced notification
// never leaves a subscriber with a stale partial view.
package notify

import (
	"sync"
)

const TopicRooms = "rooms"

// RoomTopic is raised whenever the room document changes.
func RoomTopic(roomID string) string {
	return "room:" + roomID
}

// MessagesTopic is raised whenever a message is appended to the room.
func MessagesTopic(roomID string) string {
	return "room:" + roomID + ":messages"
}

type Listener func()

// Emitter manages topic subscriptions and dispatching.
type Emitter struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
}

func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string]map[uint64]Listener),
	}
}

// On subscribes fn to topic and returns an unsubscribe function.
func (e *Emitter) On(topic string, fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.listeners[topic] == nil {
		e.listeners[topic] = make(map[uint64]Listener)
	}
	e.listeners[topic][id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.listeners[topic], id)
			if len(e.listeners[topic]) == 0 {
				delete(e.listeners, topic)
			}
		})
	}
}

// Emit wakes every listener of each topic. Listeners run on the caller's
// goroutine and must not block.
func (e *Emitter) Emit(topics ...string) {
	var fns []Listener
	e.mu.RLock()
	for _, topic := range topics {
		for _, fn := range e.listeners[topic] {
			fns = append(fns, fn)
		}
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Count returns the number of listeners on topic.
func (e *Emitter) Count(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[topic])
}

package broadcastsvc

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-chat/core/chat"
)

// Recorder is a chat.Broadcaster that keeps every event and group change in memory.
type Recorder struct {
	mu      sync.Mutex
	events  []chat.Event
	groups  map[string]map[string]bool // roomID -> connIDs
	FailAdd error                      // returned by AddToGroup when set
}

var _ chat.Broadcaster = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{groups: make(map[string]map[string]bool)}
}

func (r *Recorder) AddToGroup(_ context.Context, connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd != nil {
		return r.FailAdd
	}
	if r.groups[roomID] == nil {
		r.groups[roomID] = make(map[string]bool)
	}
	r.groups[roomID][connID] = true
	return nil
}

func (r *Recorder) RemoveFromGroup(_ context.Context, connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups[roomID], connID)
	return nil
}

func (r *Recorder) Broadcast(_ context.Context, ev chat.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) InGroup(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[roomID][connID]
}

// Events returns the recorded events, optionally only those with the given name.
func (r *Recorder) Events(name ...string) []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Event, 0, len(r.events))
	for _, ev := range r.events {
		if len(name) == 0 || ev.Name == name[0] {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

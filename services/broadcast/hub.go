package broadcastsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/chat"
)

var ErrUnknownConn = errors.New("unknown connection")

// Sink is a connection's outbound queue. Send must not block; it reports false when the frame was dropped.
type Sink interface {
	Send(frame []byte) bool
}

type group struct {
	mu    sync.RWMutex
	conns map[string]struct{}
	dead  bool // emptied and removed from the hub
}

// drop removes connID and retires the group once it is empty.
func (h *Hub) drop(roomID string, g *group, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, connID)
	if len(g.conns) == 0 && !g.dead {
		g.dead = true
		h.groups.CompareAndDelete(roomID, g)
	}
}

// Hub fans events out to the websocket connections of this instance.
type Hub struct {
	sinks  sync.Map // connID -> Sink
	groups sync.Map // roomID -> *group
}

var _ chat.Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Register(connID string, sink Sink) {
	h.sinks.Store(connID, sink)
}

// Unregister forgets the connection and drops it from every group.
func (h *Hub) Unregister(connID string) {
	h.sinks.Delete(connID)
	h.groups.Range(func(k, v interface{}) bool {
		g := v.(*group)
		g.mu.RLock()
		_, in := g.conns[connID]
		g.mu.RUnlock()
		if in {
			h.drop(k.(string), g, connID)
		}
		return true
	})
}

func (h *Hub) AddToGroup(_ context.Context, connID, roomID string) error {
	if _, ok := h.sinks.Load(connID); !ok {
		return ErrUnknownConn
	}
	for {
		v, _ := h.groups.LoadOrStore(roomID, &group{conns: make(map[string]struct{})})
		g := v.(*group)
		g.mu.Lock()
		if !g.dead {
			g.conns[connID] = struct{}{}
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()
	}
}

func (h *Hub) RemoveFromGroup(_ context.Context, connID, roomID string) error {
	if v, ok := h.groups.Load(roomID); ok {
		h.drop(roomID, v.(*group), connID)
	}
	return nil
}

// Broadcast delivers ev to the room group on this instance.
func (h *Hub) Broadcast(_ context.Context, ev chat.Event) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	if dropped := h.deliver(ev.RoomID, ev.ExceptConnID, frame); dropped > 0 {
		return errors.Errorf("%d slow connection(s) dropped %s", dropped, ev.Name)
	}
	return nil
}

func (h *Hub) deliver(roomID, except string, frame []byte) (dropped int) {
	v, ok := h.groups.Load(roomID)
	if !ok {
		return 0
	}
	g := v.(*group)

	g.mu.RLock()
	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		if id != except {
			ids = append(ids, id)
		}
	}
	g.mu.RUnlock()

	for _, id := range ids {
		s, ok := h.sinks.Load(id)
		if !ok {
			continue
		}
		if !s.(Sink).Send(frame) {
			dropped++
		}
	}
	return dropped
}

func (h *Hub) groupCount() int {
	n := 0
	h.groups.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// GroupSize reports how many connections of this instance are in the room group.
func (h *Hub) GroupSize(roomID string) int {
	v, ok := h.groups.Load(roomID)
	if !ok {
		return 0
	}
	g := v.(*group)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

package broadcastsvc

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/trezcool/masomo-chat/core/chat"
)

type chanSink chan []byte

func (s chanSink) Send(frame []byte) bool {
	select {
	case s <- frame:
		return true
	default:
		return false
	}
}

func (s chanSink) drain() [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-s:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestHub_Broadcast(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b, c := make(chanSink, 4), make(chanSink, 4), make(chanSink, 4)
	hub.Register("a", a)
	hub.Register("b", b)
	hub.Register("c", c)

	for _, id := range []string{"a", "b"} {
		if err := hub.AddToGroup(ctx, id, "r1"); err != nil {
			t.Fatalf("AddToGroup(%s) error = %v", id, err)
		}
	}
	if err := hub.AddToGroup(ctx, "c", "r2"); err != nil {
		t.Fatalf("AddToGroup(c) error = %v", err)
	}
	if err := hub.AddToGroup(ctx, "ghost", "r1"); err != ErrUnknownConn {
		t.Errorf("AddToGroup(ghost) error = %v, wantErr %v", err, ErrUnknownConn)
	}

	tests := []struct {
		name       string
		ev         chat.Event
		wantFrames map[string]int
	}{
		{
			name:       "whole group",
			ev:         chat.Event{Name: chat.EventUserListUpdated, RoomID: "r1", Payload: []string{"A", "B"}},
			wantFrames: map[string]int{"a": 1, "b": 1, "c": 0},
		},
		{
			name:       "except sender",
			ev:         chat.Event{Name: chat.EventUserJoined, RoomID: "r1", Payload: "A", ExceptConnID: "a"},
			wantFrames: map[string]int{"a": 0, "b": 1, "c": 0},
		},
		{
			name:       "unknown room",
			ev:         chat.Event{Name: chat.EventUserLeft, RoomID: "nope", Payload: "A"},
			wantFrames: map[string]int{"a": 0, "b": 0, "c": 0},
		},
	}
	sinks := map[string]chanSink{"a": a, "b": b, "c": c}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := hub.Broadcast(ctx, tt.ev); err != nil {
				t.Fatalf("Broadcast() error = %v", err)
			}
			for id, want := range tt.wantFrames {
				if got := len(sinks[id].drain()); got != want {
					t.Errorf("conn %s got %d frames, want %d", id, got, want)
				}
			}
		})
	}
}

func TestHub_frameShape(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	s := make(chanSink, 1)
	hub.Register("a", s)
	_ = hub.AddToGroup(ctx, "a", "r1")

	msg := chat.ReceivedMessage{ID: "m1", Sender: "A", Content: "hi", Timestamp: "2024-01-01T00:00:00Z"}
	if err := hub.Broadcast(ctx, chat.Event{Name: chat.EventReceiveMessage, RoomID: "r1", Payload: msg}); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	var got struct {
		Type   string               `json:"type"`
		RoomID string               `json:"roomId"`
		Data   chat.ReceivedMessage `json:"data"`
	}
	if err := json.Unmarshal(<-s, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.Type != chat.EventReceiveMessage || got.RoomID != "r1" || got.Data != msg {
		t.Errorf("frame = %+v", got)
	}
}

func TestHub_slowConsumerAndUnregister(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	slow := make(chanSink) // unbuffered: every send is dropped
	hub.Register("slow", slow)
	_ = hub.AddToGroup(ctx, "slow", "r1")

	if err := hub.Broadcast(ctx, chat.Event{Name: chat.EventUserLeft, RoomID: "r1", Payload: "A"}); err == nil {
		t.Error("Broadcast() error = nil, want dropped frame error")
	}

	hub.Unregister("slow")
	if n := hub.GroupSize("r1"); n != 0 {
		t.Errorf("GroupSize() = %d, want 0", n)
	}
	if err := hub.Broadcast(ctx, chat.Event{Name: chat.EventUserLeft, RoomID: "r1", Payload: "A"}); err != nil {
		t.Errorf("Broadcast() after Unregister error = %v", err)
	}
}

func TestHub_emptyGroupsRemoved(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	hub.Register("a", make(chanSink, 1))
	hub.Register("b", make(chanSink, 1))

	for i := 0; i < 100; i++ {
		room := "r" + strconv.Itoa(i)
		_ = hub.AddToGroup(ctx, "a", room)
		_ = hub.AddToGroup(ctx, "b", room)
		_ = hub.RemoveFromGroup(ctx, "a", room)
		if i%2 == 0 {
			_ = hub.RemoveFromGroup(ctx, "b", room)
		}
	}
	if n := hub.groupCount(); n != 50 {
		t.Errorf("groupCount() = %d, want 50", n)
	}
	hub.Unregister("b")
	if n := hub.groupCount(); n != 0 {
		t.Errorf("groupCount() after Unregister = %d, want 0", n)
	}

	// a retired group is replaced, not reused
	_ = hub.AddToGroup(ctx, "a", "r1")
	if n := hub.GroupSize("r1"); n != 1 {
		t.Errorf("GroupSize(r1) = %d, want 1", n)
	}
}

func TestHub_concurrentJoinLeave(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	for i := 0; i < 20; i++ {
		hub.Register(strconv.Itoa(i), make(chanSink, 1))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.AddToGroup(ctx, id, "r1")
				_ = hub.RemoveFromGroup(ctx, id, "r1")
			}
			_ = hub.AddToGroup(ctx, id, "r1")
		}(strconv.Itoa(i))
	}
	wg.Wait()
	if n := hub.GroupSize("r1"); n != 20 {
		t.Errorf("GroupSize(r1) = %d, want 20", n)
	}
}

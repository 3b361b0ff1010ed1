package chat

import (
	"sort"
	"sync"
)

// Member is what the registry keeps for each connection in a room.
type Member struct {
	Username string
	UserID   string
}

// Removal reports a connection dropped from a room.
type Removal struct {
	RoomID string
	Member Member
}

type roomMembers struct {
	mu    sync.RWMutex
	conns map[string]Member // connID -> Member
	dead  bool              // set once the room is emptied and unlinked from the registry
}

// Registry tracks which live connections are in which room.
// Rooms are locked independently; there is no registry-wide lock.
type Registry struct {
	rooms sync.Map // roomID -> *roomMembers
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) lookup(roomID string) (*roomMembers, bool) {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return nil, false
	}
	return v.(*roomMembers), true
}

// Join adds connID to the room, unless the room already holds capacity connections
// (capacity <= 0 means unbounded). The capacity check and the insert happen under one lock.
// Joining twice is a no-op that refreshes the member and reports added = false.
func (r *Registry) Join(roomID, connID string, m Member, capacity int) (added bool, err error) {
	for {
		v, _ := r.rooms.LoadOrStore(roomID, &roomMembers{conns: make(map[string]Member)})
		rm := v.(*roomMembers)

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		if _, ok := rm.conns[connID]; ok {
			rm.conns[connID] = m
			rm.mu.Unlock()
			return false, nil
		}
		if capacity > 0 && len(rm.conns) >= capacity {
			rm.mu.Unlock()
			return false, ErrRoomFull
		}
		rm.conns[connID] = m
		rm.mu.Unlock()
		return true, nil
	}
}

// Leave removes connID from the room and returns the removed entry, if any.
func (r *Registry) Leave(roomID, connID string) (Member, bool) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return Member{}, false
	}
	return r.leave(roomID, rm, connID)
}

func (r *Registry) leave(roomID string, rm *roomMembers, connID string) (Member, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, ok := rm.conns[connID]
	if !ok {
		return Member{}, false
	}
	delete(rm.conns, connID)
	if len(rm.conns) == 0 && !rm.dead {
		rm.dead = true
		r.rooms.CompareAndDelete(roomID, rm)
	}
	return m, true
}

// RemoveConnectionFromAllRooms drops connID everywhere and reports each room it left, sorted by room ID.
func (r *Registry) RemoveConnectionFromAllRooms(connID string) []Removal {
	var removed []Removal
	r.rooms.Range(func(k, v interface{}) bool {
		roomID := k.(string)
		if m, ok := r.leave(roomID, v.(*roomMembers), connID); ok {
			removed = append(removed, Removal{RoomID: roomID, Member: m})
		}
		return true
	})
	sort.Slice(removed, func(i, j int) bool { return removed[i].RoomID < removed[j].RoomID })
	return removed
}

func (r *Registry) Count(roomID string) int {
	rm, ok := r.lookup(roomID)
	if !ok {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.conns)
}

func (r *Registry) IsMember(roomID, connID string) bool {
	_, ok := r.Member(roomID, connID)
	return ok
}

func (r *Registry) Member(roomID, connID string) (Member, bool) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return Member{}, false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	m, ok := rm.conns[connID]
	return m, ok
}

// ListUsernames returns the distinct display names present in the room, sorted.
// The result is never nil.
func (r *Registry) ListUsernames(roomID string) []string {
	names := make([]string, 0)
	rm, ok := r.lookup(roomID)
	if !ok {
		return names
	}

	rm.mu.RLock()
	seen := make(map[string]struct{}, len(rm.conns))
	for _, m := range rm.conns {
		if _, dup := seen[m.Username]; dup {
			continue
		}
		seen[m.Username] = struct{}{}
		names = append(names, m.Username)
	}
	rm.mu.RUnlock()

	sort.Strings(names)
	return names
}

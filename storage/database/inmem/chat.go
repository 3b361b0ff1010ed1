package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-chat/core/chat"
)

type chatRepository struct {
	db    *chatTables
	users *userTable
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) chat.Repository {
	return &chatRepository{db: db.chat, users: db.user}
}

func (repo *chatRepository) GetRoom(_ context.Context, id string) (chat.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if room, ok := repo.db.rooms[id]; ok {
		return *room, nil
	}
	return chat.Room{}, chat.ErrNotFound
}

func (repo *chatRepository) QueryRooms(_ context.Context, activeOnly bool) ([]chat.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rooms := make([]chat.Room, 0, len(repo.db.rooms))
	for _, r := range repo.db.rooms {
		if activeOnly && !r.IsActive {
			continue
		}
		rooms = append(rooms, *r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

func (repo *chatRepository) CreateRoom(_ context.Context, room chat.Room) (chat.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.rooms[room.ID] = &room
	if room.CreatedBy != "" {
		repo.addParticipant(room.ID, room.CreatedBy)
	}
	return room, nil
}

func (repo *chatRepository) addParticipant(roomID, userID string) {
	ps, ok := repo.db.participants[roomID]
	if !ok {
		ps = make(map[string]struct{})
		repo.db.participants[roomID] = ps
	}
	ps[userID] = struct{}{}
}

func (repo *chatRepository) IsParticipant(_ context.Context, roomID, userID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.participants[roomID][userID]
	return ok, nil
}

func (repo *chatRepository) AddParticipant(_ context.Context, roomID, userID string, _ time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rooms[roomID]; !ok {
		return chat.ErrNotFound
	}
	repo.addParticipant(roomID, userID)
	return nil
}

func (repo *chatRepository) InsertMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rooms[msg.RoomID]; !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	repo.db.messages[msg.RoomID] = append(repo.db.messages[msg.RoomID], msg)
	return msg, nil
}

func (repo *chatRepository) RecentMessages(_ context.Context, roomID string, n int) ([]chat.StoredMessage, error) {
	repo.db.RLock()
	msgs := repo.db.messages[roomID]
	out := make([]chat.StoredMessage, 0, n)
	for i := len(msgs) - 1; i >= 0 && len(out) < n; i-- {
		if msgs[i].IsDeleted {
			continue
		}
		out = append(out, chat.StoredMessage{Message: msgs[i]})
	}
	repo.db.RUnlock()

	repo.users.RLock()
	defer repo.users.RUnlock()
	for i := range out {
		if usr, ok := repo.users.table[out[i].SenderID]; ok {
			out[i].SenderName = usr.DisplayName()
		}
	}
	return out, nil
}

func (repo *chatRepository) TouchRoom(_ context.Context, roomID string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	room, ok := repo.db.rooms[roomID]
	if !ok {
		return chat.ErrNotFound
	}
	room.LastActivityAt = at.UTC()
	return nil
}

package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
)

type (
	// DB is a process-local store with one lock per table.
	DB struct {
		user *userTable
		chat *chatTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	chatTables struct {
		sync.RWMutex
		rooms        map[string]*chat.Room
		participants map[string]map[string]struct{} // roomID -> userIDs
		messages     map[string][]chat.Message      // roomID -> messages, insertion order
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		chat: &chatTables{
			rooms:        make(map[string]*chat.Room),
			participants: make(map[string]map[string]struct{}),
			messages:     make(map[string][]chat.Message),
		},
	}
}

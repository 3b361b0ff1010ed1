package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateRoom stores an active room owned by creator. Extra participants are added as given.
func CreateRoom(
	t *testing.T,
	repo chat.Repository,
	id, name, pwd string,
	capacity int,
	encrypted bool,
	creator user.User,
	participants ...user.User,
) chat.Room {
	t.Helper()
	room := chat.Room{
		ID:              id,
		Name:            name,
		MaxParticipants: capacity,
		IsEncrypted:     encrypted,
		IsActive:        true,
		CreatedBy:       creator.ID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := room.SetPassword(pwd); err != nil {
		t.Fatalf("createRoom() failed: %v", err)
	}
	room, err := repo.CreateRoom(context.Background(), room)
	if err != nil {
		t.Fatalf("createRoom() failed: %v", err)
	}
	for _, p := range participants {
		if err := repo.AddParticipant(context.Background(), room.ID, p.ID, time.Now()); err != nil {
			t.Fatalf("createRoom() failed: %v", err)
		}
	}
	return room
}

func Identity(usr user.User) *chat.Identity {
	return &chat.Identity{UserID: usr.ID, Name: usr.DisplayName()}
}

// NewValidator returns a validator with the core and chat rules registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	chat.InitValidators(validate, translator)
	return validate, translator
}

// LoggerMock records log calls.
type LoggerMock struct {
	mu      sync.Mutex
	Entries []string
}

var _ core.Logger = (*LoggerMock)(nil)

func (l *LoggerMock) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (l *LoggerMock) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Entries)
}

func (l *LoggerMock) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *LoggerMock) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *LoggerMock) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *LoggerMock) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *LoggerMock) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

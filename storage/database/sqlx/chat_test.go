package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
	"github.com/trezcool/masomo-chat/tests"
)

func TestChatRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	usrRepo := NewUserRepository(db)
	repo := NewChatRepository(db)

	alice := testutil.CreateUser(t, usrRepo, "Alice", "alice", "alice@test.cd", "Secret123!", []string{user.RoleTeacher}, true)
	bob := testutil.CreateUser(t, usrRepo, "", "bob", "", "", nil, true)

	roomID := uuid.NewString()
	room := testutil.CreateRoom(t, repo, roomID, "Maths", "Tr0ub4dor&3", 10, true, alice)

	t.Run("GetRoom", func(t *testing.T) {
		got, err := repo.GetRoom(ctx, roomID)
		if err != nil {
			t.Fatalf("GetRoom() error = %v", err)
		}
		if got.Name != room.Name || !got.HasPassword() || !got.IsEncrypted || !got.LastActivityAt.IsZero() {
			t.Errorf("GetRoom() = %+v", got)
		}
		if _, err := repo.GetRoom(ctx, uuid.NewString()); err != chat.ErrNotFound {
			t.Errorf("GetRoom(unknown) error = %v, wantErr %v", err, chat.ErrNotFound)
		}
	})

	t.Run("participants", func(t *testing.T) {
		if ok, _ := repo.IsParticipant(ctx, roomID, alice.ID); !ok {
			t.Error("creator is not a participant")
		}
		if ok, _ := repo.IsParticipant(ctx, roomID, bob.ID); ok {
			t.Error("bob is a participant too early")
		}
		for i := 0; i < 2; i++ {
			if err := repo.AddParticipant(ctx, roomID, bob.ID, time.Now()); err != nil {
				t.Fatalf("AddParticipant() #%d error = %v", i, err)
			}
		}
		if ok, _ := repo.IsParticipant(ctx, roomID, bob.ID); !ok {
			t.Error("bob is not a participant")
		}
	})

	t.Run("messages", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Microsecond)
		for i, sender := range []string{alice.ID, bob.ID, alice.ID} {
			msg := chat.Message{ID: uuid.NewString(), RoomID: roomID, SenderID: sender, Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
			if _, err := repo.InsertMessage(ctx, msg); err != nil {
				t.Fatalf("InsertMessage() error = %v", err)
			}
		}
		deleted := chat.Message{ID: uuid.NewString(), RoomID: roomID, SenderID: bob.ID, Content: "x", CreatedAt: base.Add(time.Second), IsDeleted: true}
		if _, err := repo.InsertMessage(ctx, deleted); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}

		got, err := repo.RecentMessages(ctx, roomID, 2)
		if err != nil {
			t.Fatalf("RecentMessages() error = %v", err)
		}
		if len(got) != 2 || got[0].SenderName != "Alice" || got[1].SenderName != "bob" {
			t.Errorf("RecentMessages() = %+v", got)
		}
		if !got[0].CreatedAt.After(got[1].CreatedAt) {
			t.Error("RecentMessages() not newest first")
		}
	})

	t.Run("TouchRoom", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Microsecond)
		if err := repo.TouchRoom(ctx, roomID, at); err != nil {
			t.Fatalf("TouchRoom() error = %v", err)
		}
		got, _ := repo.GetRoom(ctx, roomID)
		if !got.LastActivityAt.Equal(at) {
			t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, at)
		}
		if err := repo.TouchRoom(ctx, uuid.NewString(), at); err != chat.ErrNotFound {
			t.Errorf("TouchRoom(unknown) error = %v, wantErr %v", err, chat.ErrNotFound)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		if _, err := repo.GetRoom(ctx, "nope"); err != chat.ErrNotFound {
			t.Errorf("GetRoom(nope) error = %v, wantErr %v", err, chat.ErrNotFound)
		}
		if ok, err := repo.IsParticipant(ctx, roomID, "bob"); ok || err != nil {
			t.Errorf("IsParticipant(bob) = %v, %v, want false, nil", ok, err)
		}
		if msgs, err := repo.RecentMessages(ctx, "nope", 5); len(msgs) != 0 || err != nil {
			t.Errorf("RecentMessages(nope) = %v, %v", msgs, err)
		}
	})

	t.Run("QueryRooms", func(t *testing.T) {
		inactive := chat.Room{ID: uuid.NewString(), Name: "Archive", MaxParticipants: 5, CreatedBy: alice.ID, CreatedAt: time.Now()}
		if _, err := repo.CreateRoom(ctx, inactive); err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		active, _ := repo.QueryRooms(ctx, true)
		all, _ := repo.QueryRooms(ctx, false)
		if len(active) != 1 || len(all) != 2 || all[0].Name != "Archive" {
			t.Errorf("QueryRooms() active = %v, all = %v", active, all)
		}
	})
}

func TestUserRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	usr := testutil.CreateUser(t, repo, "Alice", "alice", "alice@test.cd", "Secret123!", []string{user.RoleAdmin}, true)

	tests := []struct {
		name     string
		username string
		email    string
		wantErr  error
	}{
		{name: "free", username: "bob", email: "bob@test.cd"},
		{name: "free without email", username: "bob"},
		{name: "username taken", username: "alice", email: "x@test.cd", wantErr: user.ErrUsernameExists},
		{name: "email taken", username: "carol", email: "alice@test.cd", wantErr: user.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.CheckUsernameUniqueness(ctx, tt.username, tt.email); err != tt.wantErr {
				t.Errorf("CheckUsernameUniqueness() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	for _, filter := range []user.GetFilter{{ID: usr.ID}, {UsernameOrEmail: "alice"}, {UsernameOrEmail: "alice@test.cd"}} {
		got, err := repo.GetUser(ctx, filter)
		if err != nil || got.ID != usr.ID || !got.IsAdmin() {
			t.Errorf("GetUser(%+v) = %+v, %v", filter, got, err)
		}
	}
	if _, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "nobody"}); err != user.ErrNotFound {
		t.Errorf("GetUser(nobody) error = %v, wantErr %v", err, user.ErrNotFound)
	}
}

// malformed ids never reach the database, so this runs without one.
func TestChatRepository_malformedIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(nil)
	usrRepo := NewUserRepository(nil)
	valid := uuid.NewString()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{name: "GetRoom", call: func() error { _, err := repo.GetRoom(ctx, "nope"); return err }, wantErr: chat.ErrNotFound},
		{name: "TouchRoom", call: func() error { return repo.TouchRoom(ctx, "r1", time.Now()) }, wantErr: chat.ErrNotFound},
		{name: "AddParticipant room", call: func() error { return repo.AddParticipant(ctx, "r1", valid, time.Now()) }, wantErr: chat.ErrNotFound},
		{name: "AddParticipant user", call: func() error { return repo.AddParticipant(ctx, valid, "bob", time.Now()) }, wantErr: chat.ErrNotFound},
		{
			name: "InsertMessage",
			call: func() error {
				_, err := repo.InsertMessage(ctx, chat.Message{ID: valid, RoomID: "r1", SenderID: valid, Content: "hi"})
				return err
			},
			wantErr: chat.ErrNotFound,
		},
		{
			name: "IsParticipant",
			call: func() error {
				if ok, err := repo.IsParticipant(ctx, "r1", valid); ok || err != nil {
					return errors.Errorf("got %v, %v", ok, err)
				}
				return nil
			},
		},
		{
			name: "RecentMessages",
			call: func() error {
				if msgs, err := repo.RecentMessages(ctx, "r1", 10); len(msgs) != 0 || err != nil {
					return errors.Errorf("got %v, %v", msgs, err)
				}
				return nil
			},
		},
		{name: "GetUser", call: func() error { _, err := usrRepo.GetUser(ctx, user.GetFilter{ID: "42"}); return err }, wantErr: user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != tt.wantErr {
				t.Errorf("%s() error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

package chat

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DecryptionFailedPlaceholder replaces the content of a history item that could not be decrypted.
const DecryptionFailedPlaceholder = "[decryption failed]"

type Room struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PasswordHash    []byte    `json:"-"`
	MaxParticipants int       `json:"max_participants"`
	IsEncrypted     bool      `json:"is_encrypted"`
	IsActive        bool      `json:"is_active"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`       // UTC
	LastActivityAt  time.Time `json:"last_activity_at"` // UTC; zero until the first join/send
}

func (r Room) HasPassword() bool {
	return len(r.PasswordHash) > 0
}

func (r *Room) SetPassword(pwd string) error {
	if pwd == "" {
		r.PasswordHash = nil
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	r.PasswordHash = hash
	return nil
}

// CheckPassword always succeeds for rooms without a password.
func (r Room) CheckPassword(pwd string) error {
	if !r.HasPassword() {
		return nil
	}
	return bcrypt.CompareHashAndPassword(r.PasswordHash, []byte(pwd))
}

// Message is the persisted form. Content is ciphertext when IsEncrypted is set.
type Message struct {
	ID          string
	RoomID      string
	SenderID    string
	Content     string
	IsEncrypted bool
	CreatedAt   time.Time // UTC, strictly increasing
	IsEdited    bool
	IsDeleted   bool
}

// StoredMessage is a Message joined with its sender's display name.
type StoredMessage struct {
	Message
	SenderName string
}

// Identity is the verified user behind a connection.
type Identity struct {
	UserID string
	Name   string // display name
}

// Conn is one live transport session. User is nil until the connection is authenticated.
type Conn struct {
	ID   string
	User *Identity
}

func (c Conn) Authenticated() bool {
	return c.User != nil && c.User.UserID != ""
}

// ReceivedMessage is the ReceiveMessage event payload.
type ReceivedMessage struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"` // ISO-8601
	IsEncrypted bool   `json:"isEncrypted"`
}

// HistoryItem is one entry of LoadMessageHistory, oldest first.
type HistoryItem struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsEdited    bool      `json:"isEdited"`
	IsEncrypted bool      `json:"isEncrypted"`
}

// RoomSummary is what room listings expose.
type RoomSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	HasPassword     bool      `json:"has_password"`
	MaxParticipants int       `json:"max_participants"`
	IsEncrypted     bool      `json:"is_encrypted"`
	Occupancy       int       `json:"occupancy"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// NewRoom contains information needed to create a new Room.
type NewRoom struct {
	Name            string `json:"name" validate:"required,notblank,max=100"`
	Password        string `json:"password" validate:"omitempty,min=8"`
	MaxParticipants int    `json:"max_participants" validate:"omitempty,min=1,max=500"`
	IsEncrypted     bool   `json:"is_encrypted"`
}

// Repository is the persisted store the engine consults on every join/send/history operation.
type Repository interface {
	GetRoom(ctx context.Context, id string) (Room, error)
	// QueryRooms returns rooms ordered by name.
	QueryRooms(ctx context.Context, activeOnly bool) ([]Room, error)
	// CreateRoom inserts the room and records its creator as a participant.
	CreateRoom(ctx context.Context, room Room) (Room, error)
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	// AddParticipant is idempotent.
	AddParticipant(ctx context.Context, roomID, userID string, joinedAt time.Time) error
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	// RecentMessages returns at most n non-deleted messages, newest first.
	RecentMessages(ctx context.Context, roomID string, n int) ([]StoredMessage, error)
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
}

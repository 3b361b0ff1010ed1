package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
)

type roomRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	PasswordHash    []byte    `db:"password_hash"`
	MaxParticipants int       `db:"max_participants"`
	IsEncrypted     bool      `db:"is_encrypted"`
	IsActive        bool      `db:"is_active"`
	CreatedBy       string    `db:"created_by"`
	CreatedAt       time.Time `db:"created_at"`
	LastActivityAt  null.Time `db:"last_activity_at"`
}

type messageRow struct {
	ID          string    `db:"id"`
	RoomID      string    `db:"room_id"`
	SenderID    string    `db:"sender_id"`
	SenderName  string    `db:"sender_name"`
	Content     string    `db:"content"`
	IsEncrypted bool      `db:"is_encrypted"`
	CreatedAt   time.Time `db:"created_at"`
	IsEdited    bool      `db:"is_edited"`
	IsDeleted   bool      `db:"is_deleted"`
}

const roomColumns = `id, name, password_hash, max_participants, is_encrypted, is_active, created_by, created_at, last_activity_at`

type chatRepository struct {
	db core.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db core.DB) chat.Repository {
	return &chatRepository{db: db}
}

func (repo chatRepository) fromRoomRow(row roomRow) chat.Room {
	room := chat.Room{
		ID:              row.ID,
		Name:            row.Name,
		PasswordHash:    row.PasswordHash,
		MaxParticipants: row.MaxParticipants,
		IsEncrypted:     row.IsEncrypted,
		IsActive:        row.IsActive,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt.UTC(),
	}
	if row.LastActivityAt.Valid {
		room.LastActivityAt = row.LastActivityAt.Time.UTC()
	}
	return room
}

// trapNoRowsErr maps psql "no rows" err to chat.ErrNotFound
func (repo chatRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return chat.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// validID reports whether id can address a uuid column; anything else matches no row.
func validID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (repo chatRepository) GetRoom(ctx context.Context, id string) (chat.Room, error) {
	if !validID(id) {
		return chat.Room{}, chat.ErrNotFound
	}
	var row roomRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, id); err != nil {
		return chat.Room{}, repo.trapNoRowsErr(err, "finding room")
	}
	return repo.fromRoomRow(row), nil
}

func (repo chatRepository) QueryRooms(ctx context.Context, activeOnly bool) ([]chat.Room, error) {
	var rows []roomRow
	q := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE (NOT $1 OR is_active) ORDER BY name, id`
	if err := repo.db.SelectContext(ctx, &rows, q, activeOnly); err != nil {
		return nil, errors.Wrap(err, "querying rooms")
	}
	rooms := make([]chat.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, repo.fromRoomRow(row))
	}
	return rooms, nil
}

func (repo chatRepository) CreateRoom(ctx context.Context, room chat.Room) (chat.Room, error) {
	room.CreatedAt = room.CreatedAt.UTC()
	err := core.WithTx(ctx, repo.db, func(exec core.DBExecutor) error {
		q := `INSERT INTO chat_rooms (` + roomColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := exec.ExecContext(ctx, q,
			room.ID, room.Name, room.PasswordHash, room.MaxParticipants, room.IsEncrypted, room.IsActive,
			room.CreatedBy, room.CreatedAt, null.NewTime(room.LastActivityAt, !room.LastActivityAt.IsZero()),
		); err != nil {
			return errors.Wrap(err, "inserting room")
		}
		return addParticipant(ctx, exec, room.ID, room.CreatedBy, room.CreatedAt)
	})
	if err != nil {
		return chat.Room{}, err
	}
	return room, nil
}

func addParticipant(ctx context.Context, exec core.DBExecutor, roomID, userID string, at time.Time) error {
	q := `INSERT INTO chat_room_participants (room_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := exec.ExecContext(ctx, q, roomID, userID, at.UTC()); err != nil {
		return errors.Wrap(err, "inserting participant")
	}
	return nil
}

func (repo chatRepository) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	if !validID(roomID, userID) {
		return false, nil
	}
	var ok bool
	q := `SELECT EXISTS (SELECT 1 FROM chat_room_participants WHERE room_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &ok, q, roomID, userID); err != nil {
		return false, errors.Wrap(err, "checking participant")
	}
	return ok, nil
}

func (repo chatRepository) AddParticipant(ctx context.Context, roomID, userID string, joinedAt time.Time) error {
	if !validID(roomID, userID) {
		return chat.ErrNotFound
	}
	return addParticipant(ctx, repo.db, roomID, userID, joinedAt)
}

func (repo chatRepository) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if !validID(msg.RoomID, msg.SenderID) {
		return chat.Message{}, chat.ErrNotFound
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	q := `INSERT INTO chat_messages (id, room_id, sender_id, content, is_encrypted, created_at, is_edited, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := repo.db.ExecContext(ctx, q,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.IsEncrypted, msg.CreatedAt, msg.IsEdited, msg.IsDeleted,
	); err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo chatRepository) RecentMessages(ctx context.Context, roomID string, n int) ([]chat.StoredMessage, error) {
	if !validID(roomID) {
		return []chat.StoredMessage{}, nil
	}
	var rows []messageRow
	q := `SELECT m.id, m.room_id, m.sender_id, COALESCE(NULLIF(u.name, ''), u.username, '') AS sender_name,
			m.content, m.is_encrypted, m.created_at, m.is_edited, m.is_deleted
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1 AND NOT m.is_deleted
		ORDER BY m.created_at DESC
		LIMIT $2`
	if err := repo.db.SelectContext(ctx, &rows, q, roomID, n); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]chat.StoredMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, chat.StoredMessage{
			Message: chat.Message{
				ID:          row.ID,
				RoomID:      row.RoomID,
				SenderID:    row.SenderID,
				Content:     row.Content,
				IsEncrypted: row.IsEncrypted,
				CreatedAt:   row.CreatedAt.UTC(),
				IsEdited:    row.IsEdited,
				IsDeleted:   row.IsDeleted,
			},
			SenderName: row.SenderName,
		})
	}
	return msgs, nil
}

func (repo chatRepository) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	if !validID(roomID) {
		return chat.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE chat_rooms SET last_activity_at = $2 WHERE id = $1`, roomID, at.UTC())
	if err != nil {
		return errors.Wrap(err, "updating room activity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

package chat

import (
	"context"
	"fmt"
	"html"
	"time"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
)

type Settings struct {
	MaxMessageLength    int
	DefaultHistoryCount int
	MaxHistoryCount     int
	DefaultRoomCapacity int
}

func (s *Settings) setDefaults() {
	if s.MaxMessageLength <= 0 {
		s.MaxMessageLength = 1000
	}
	if s.DefaultHistoryCount <= 0 {
		s.DefaultHistoryCount = 50
	}
	if s.MaxHistoryCount <= 0 {
		s.MaxHistoryCount = 200
	}
	if s.DefaultRoomCapacity <= 0 {
		s.DefaultRoomCapacity = 50
	}
}

// ServiceDeps holds the collaborators shared by every connection.
type ServiceDeps struct {
	Repo        Repository
	Verifier    TokenVerifier
	Issuer      TokenIssuer
	Cipher      Cipher
	FloodGuard  *FloodGuard
	Registry    *Registry
	Broadcaster Broadcaster
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	Settings    Settings
	Now         func() time.Time // optional
}

// Service is the chat session controller: it turns connection requests into
// registry, persistence and broadcast effects.
type Service struct {
	repo       Repository
	verifier   TokenVerifier
	issuer     TokenIssuer
	cipher     Cipher
	flood      *FloodGuard
	registry   *Registry
	bcast      Broadcaster
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	settings   Settings
	clock      *monotonicClock
	sendLocks  keyedMutex // by room
}

func NewService(deps ServiceDeps) *Service {
	deps.Settings.setDefaults()
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.FloodGuard == nil {
		deps.FloodGuard = NewFloodGuard(0, 0)
	}
	return &Service{
		repo:       deps.Repo,
		verifier:   deps.Verifier,
		issuer:     deps.Issuer,
		cipher:     deps.Cipher,
		flood:      deps.FloodGuard,
		registry:   deps.Registry,
		bcast:      deps.Broadcaster,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
		settings:   deps.Settings,
		clock:      newMonotonicClock(deps.Now),
	}
}

// Registry exposes the live membership view (room listings, diagnostics).
func (svc *Service) Registry() *Registry {
	return svc.registry
}

// JoinRoom places the connection in the room's registry entry and broadcast group.
func (svc *Service) JoinRoom(ctx context.Context, conn Conn, roomID, accessToken string) error {
	if !conn.Authenticated() {
		return ErrUnauthorized
	}
	if bound, ok := svc.verifier.RoomID(accessToken); !ok || bound != roomID {
		return errors.Wrap(ErrUnauthorized, "invalid room access token")
	}

	room, err := svc.repo.GetRoom(ctx, roomID)
	if err != nil {
		return storeErr(err, "loading room")
	}
	if !room.IsActive {
		return ErrRoomInactive
	}

	// cheap pre-check; Registry.Join re-checks atomically
	if !svc.registry.IsMember(roomID, conn.ID) && room.MaxParticipants > 0 && svc.registry.Count(roomID) >= room.MaxParticipants {
		return ErrRoomFull
	}

	ok, err := svc.repo.IsParticipant(ctx, roomID, conn.User.UserID)
	if err != nil {
		return storeErr(err, "checking participation")
	}
	if !ok {
		return errors.Wrap(ErrUnauthorized, "not a participant")
	}

	member := Member{Username: conn.User.Name, UserID: conn.User.UserID}
	added, err := svc.registry.Join(roomID, conn.ID, member, room.MaxParticipants)
	if err != nil {
		return err
	}

	rollback := func() {
		if !added {
			return
		}
		svc.registry.Leave(roomID, conn.ID)
		if err := svc.bcast.RemoveFromGroup(ctx, conn.ID, roomID); err != nil {
			svc.logger.Warn("chat.JoinRoom: rollback group membership", err, map[string]interface{}{"room": roomID, "conn": conn.ID})
		}
	}

	if err := svc.bcast.AddToGroup(ctx, conn.ID, roomID); err != nil {
		rollback()
		return errors.Wrap(err, "adding connection to room group")
	}
	if err := svc.repo.TouchRoom(ctx, roomID, svc.clock.Now()); err != nil {
		rollback()
		return storeErr(err, "updating room activity")
	}

	if !added {
		return nil
	}
	svc.broadcastPresence(ctx, roomID)
	svc.broadcast(ctx, Event{Name: EventUserJoined, RoomID: roomID, Payload: member.Username, ExceptConnID: conn.ID})
	return nil
}

// LeaveRoom is idempotent: leaving a room the connection is not in only clears its group membership.
func (svc *Service) LeaveRoom(ctx context.Context, conn Conn, roomID string) error {
	if err := svc.bcast.RemoveFromGroup(ctx, conn.ID, roomID); err != nil {
		svc.logger.Warn("chat.LeaveRoom: remove from group", err, map[string]interface{}{"room": roomID, "conn": conn.ID})
	}
	m, ok := svc.registry.Leave(roomID, conn.ID)
	if !ok {
		return nil
	}
	svc.broadcastPresence(ctx, roomID)
	svc.broadcast(ctx, Event{Name: EventUserLeft, RoomID: roomID, Payload: m.Username})
	return nil
}

// SendTyping notifies the rest of the room. Non-members are ignored.
// The announced name is the one registered at join time; displayName is accepted for wire compatibility.
func (svc *Service) SendTyping(ctx context.Context, conn Conn, roomID, displayName string) {
	m, ok := svc.registry.Member(roomID, conn.ID)
	if !ok {
		return
	}
	svc.broadcast(ctx, Event{Name: EventReceiveTyping, RoomID: roomID, Payload: m.Username, ExceptConnID: conn.ID})
}

type messageInput struct {
	Text string `json:"text" validate:"required,notblank"`
}

func (svc *Service) validateText(text string) error {
	if err := svc.validate.Struct(messageInput{Text: text}); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	if utf8.RuneCountInString(text) > svc.settings.MaxMessageLength {
		return core.NewValidationError(nil, core.FieldError{
			Field: "text",
			Error: fmt.Sprintf("text must be a maximum of %d characters in length", svc.settings.MaxMessageLength),
		})
	}
	return nil
}

// SendMessage validates, rate-limits, sanitizes, (maybe) encrypts, persists and broadcasts a message.
// The broadcast carries the sanitized plaintext and reaches the sender too.
func (svc *Service) SendMessage(ctx context.Context, conn Conn, roomID, text string) (ReceivedMessage, error) {
	if err := svc.validateText(text); err != nil {
		return ReceivedMessage{}, err
	}
	if !conn.Authenticated() || !svc.registry.IsMember(roomID, conn.ID) {
		return ReceivedMessage{}, ErrUnauthorized
	}
	if !svc.flood.Allow(conn.User.UserID, roomID) {
		return ReceivedMessage{}, ErrRateLimitExceeded
	}

	sent := false
	defer func() {
		if !sent {
			svc.flood.Release(conn.User.UserID, roomID)
		}
	}()

	sanitized := html.EscapeString(text)

	room, err := svc.repo.GetRoom(ctx, roomID)
	if err != nil {
		return ReceivedMessage{}, storeErr(err, "loading room")
	}

	// held across persist+broadcast so that a room's broadcast order matches its timestamps
	unlock := svc.sendLocks.Lock(roomID)
	defer unlock()

	msg := Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    conn.User.UserID,
		Content:     sanitized,
		IsEncrypted: room.IsEncrypted,
		CreatedAt:   svc.clock.Now(),
	}
	if room.IsEncrypted {
		ct, err := svc.cipher.Encrypt(sanitized, roomID)
		if err != nil {
			if _, ok := err.(*EncryptionError); !ok {
				err = &EncryptionError{RoomID: roomID, Err: err}
			}
			return ReceivedMessage{}, err
		}
		msg.Content = ct
	}

	msg, err = svc.repo.InsertMessage(ctx, msg)
	if err != nil {
		return ReceivedMessage{}, storeErr(err, "saving message")
	}
	sent = true
	if err := svc.repo.TouchRoom(ctx, roomID, msg.CreatedAt); err != nil {
		svc.logger.Warn("chat.SendMessage: update room activity", err, map[string]interface{}{"room": roomID})
	}

	out := ReceivedMessage{
		ID:          msg.ID,
		Sender:      conn.User.Name,
		Content:     sanitized,
		Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsEncrypted: room.IsEncrypted,
	}
	svc.broadcast(ctx, Event{Name: EventReceiveMessage, RoomID: roomID, Payload: out})
	return out, nil
}

// LoadMessageHistory returns up to count recent messages, oldest first, decrypted.
// Messages that fail to decrypt are kept with a placeholder content.
func (svc *Service) LoadMessageHistory(ctx context.Context, conn Conn, roomID string, count int) ([]HistoryItem, error) {
	if !conn.Authenticated() {
		return nil, ErrUnauthorized
	}
	room, err := svc.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "loading room")
	}
	ok, err := svc.repo.IsParticipant(ctx, roomID, conn.User.UserID)
	if err != nil {
		return nil, storeErr(err, "checking participation")
	}
	if !ok {
		return nil, errors.Wrap(ErrUnauthorized, "not a participant")
	}

	switch {
	case count <= 0:
		count = svc.settings.DefaultHistoryCount
	case count > svc.settings.MaxHistoryCount:
		count = svc.settings.MaxHistoryCount
	}

	msgs, err := svc.repo.RecentMessages(ctx, roomID, count)
	if err != nil {
		return nil, storeErr(err, "loading messages")
	}

	items := make([]HistoryItem, len(msgs))
	for i, m := range msgs {
		content := m.Content
		if m.IsEncrypted {
			plain, err := svc.cipher.Decrypt(m.Content, roomID)
			if err != nil {
				svc.logger.Warn("chat.LoadMessageHistory: decrypt", err, map[string]interface{}{"room": roomID, "message": m.ID})
				plain = DecryptionFailedPlaceholder
			}
			content = plain
		}
		// newest first -> oldest first
		items[len(msgs)-1-i] = HistoryItem{
			ID:          m.ID,
			Sender:      m.SenderName,
			Content:     content,
			Timestamp:   m.CreatedAt.UTC(),
			IsEdited:    m.IsEdited,
			IsEncrypted: room.IsEncrypted,
		}
	}
	return items, nil
}

// Disconnect removes the connection from every room it was in. It never fails.
func (svc *Service) Disconnect(ctx context.Context, conn Conn) {
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error("chat.Disconnect: panic", fmt.Errorf("%v", r), map[string]interface{}{"conn": conn.ID})
		}
	}()

	for _, rm := range svc.registry.RemoveConnectionFromAllRooms(conn.ID) {
		if err := svc.bcast.RemoveFromGroup(ctx, conn.ID, rm.RoomID); err != nil {
			svc.logger.Warn("chat.Disconnect: remove from group", err, map[string]interface{}{"room": rm.RoomID, "conn": conn.ID})
		}
		svc.broadcastPresence(ctx, rm.RoomID)
		svc.broadcast(ctx, Event{Name: EventUserLeft, RoomID: rm.RoomID, Payload: rm.Member.Username})
	}
	if conn.Authenticated() {
		svc.flood.ForgetIdle(conn.User.UserID)
	}
}

func (svc *Service) broadcastPresence(ctx context.Context, roomID string) {
	svc.broadcast(ctx, Event{Name: EventUserListUpdated, RoomID: roomID, Payload: svc.registry.ListUsernames(roomID)})
}

// broadcast failures are logged, never returned: the state change already happened.
func (svc *Service) broadcast(ctx context.Context, ev Event) {
	if err := svc.bcast.Broadcast(ctx, ev); err != nil {
		svc.logger.Warn("chat.broadcast", err, map[string]interface{}{"event": ev.Name, "room": ev.RoomID})
	}
}

package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
)

func (nr *NewRoom) Clean() {
	nr.Name = core.CleanString(nr.Name)
}

// CreateRoom persists a new active room and makes its creator a participant.
func (svc *Service) CreateRoom(ctx context.Context, creator Identity, nr NewRoom) (Room, error) {
	if creator.UserID == "" {
		return Room{}, ErrUnauthorized
	}
	nr.Clean()
	if err := svc.validate.Struct(nr); err != nil {
		return Room{}, core.TranslateValidationErrors(err, svc.translator)
	}
	if nr.MaxParticipants == 0 {
		nr.MaxParticipants = svc.settings.DefaultRoomCapacity
	}

	room := Room{
		ID:              uuid.NewString(),
		Name:            nr.Name,
		MaxParticipants: nr.MaxParticipants,
		IsEncrypted:     nr.IsEncrypted,
		IsActive:        true,
		CreatedBy:       creator.UserID,
		CreatedAt:       svc.clock.Now(),
	}
	if err := room.SetPassword(nr.Password); err != nil {
		return Room{}, errors.Wrap(err, "hashing room password")
	}

	room, err := svc.repo.CreateRoom(ctx, room)
	if err != nil {
		return Room{}, storeErr(err, "creating room")
	}
	return room, nil
}

// ListRooms returns the active rooms with their live occupancy on this instance.
func (svc *Service) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	rooms, err := svc.repo.QueryRooms(ctx, true)
	if err != nil {
		return nil, storeErr(err, "querying rooms")
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			ID:              r.ID,
			Name:            r.Name,
			HasPassword:     r.HasPassword(),
			MaxParticipants: r.MaxParticipants,
			IsEncrypted:     r.IsEncrypted,
			Occupancy:       svc.registry.Count(r.ID),
			LastActivityAt:  r.LastActivityAt,
		})
	}
	return out, nil
}

// JoinWithPassword records the user as a participant of the room, checking its password if it has one.
func (svc *Service) JoinWithPassword(ctx context.Context, user Identity, roomID, password string) error {
	if user.UserID == "" {
		return ErrUnauthorized
	}
	room, err := svc.repo.GetRoom(ctx, roomID)
	if err != nil {
		return storeErr(err, "loading room")
	}
	if !room.IsActive {
		return ErrRoomInactive
	}
	if err := room.CheckPassword(strings.TrimSpace(password)); err != nil {
		return errors.Wrap(ErrUnauthorized, "invalid room password")
	}
	if err := svc.repo.AddParticipant(ctx, roomID, user.UserID, svc.clock.Now()); err != nil {
		return storeErr(err, "adding participant")
	}
	return nil
}

// IssueRoomToken mints a room access token for a participant.
func (svc *Service) IssueRoomToken(ctx context.Context, user Identity, roomID string) (string, error) {
	if user.UserID == "" {
		return "", ErrUnauthorized
	}
	room, err := svc.repo.GetRoom(ctx, roomID)
	if err != nil {
		return "", storeErr(err, "loading room")
	}
	if !room.IsActive {
		return "", ErrRoomInactive
	}
	ok, err := svc.repo.IsParticipant(ctx, roomID, user.UserID)
	if err != nil {
		return "", storeErr(err, "checking participation")
	}
	if !ok {
		return "", errors.Wrap(ErrUnauthorized, "not a participant")
	}
	return svc.issuer.Issue(user.UserID, roomID)
}

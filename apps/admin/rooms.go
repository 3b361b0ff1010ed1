package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/chat"
)

func (cli *commandLine) createRoom(creator string, nr chat.NewRoom) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, creator)
	if err != nil {
		return errors.Wrap(err, "finding creator")
	}
	room, err := cli.chatSvc.CreateRoom(ctx, chat.Identity{UserID: usr.ID, Name: usr.DisplayName()}, nr)
	if err != nil {
		return err
	}
	cli.printf("room %q created (id=%s)\n", room.Name, room.ID)
	return nil
}

// addParticipant skips the room password: admins vouch for the user.
func (cli *commandLine) addParticipant(roomID, uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	if _, err = cli.chatRepo.GetRoom(ctx, roomID); err != nil {
		return errors.Wrap(err, "finding room")
	}
	if err = cli.chatRepo.AddParticipant(ctx, roomID, usr.ID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "adding participant")
	}
	cli.printf("%q added to room %s\n", usr.Username, roomID)
	return nil
}

package main

import (
	"context"

	"github.com/trezcool/masomo-chat/core/user"
)

var roleSets = map[string][]string{
	"":        nil,
	"admin":   user.AllRoles,
	"teacher": user.TeacherRoles,
	"student": user.StudentRoles,
}

func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	cli.printf("user %q created (id=%s)\n", usr.Username, usr.ID)
	return nil
}

package main

import (
	"github.com/pressly/goose/v3"

	"github.com/trezcool/masomo-chat/storage/database"
)

var gooseRunFunc database.GooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	return database.Migrate(gooseRunFunc, cli.db, args[0], args[1:]...)
}

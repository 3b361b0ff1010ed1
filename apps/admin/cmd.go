package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrSvc   *user.Service
	chatSvc  *chat.Service
	chatRepo chat.Repository
	out      io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS]                                    - run a goose command (up, down, status, ...)\n")
	cli.printf("  adduser -username USERNAME [-email E] [-name N] [-role R]  - create a user; the password is prompted\n")
	cli.printf("  createroom -name NAME -creator USERNAME [-capacity N] [-encrypted] [-protected]\n")
	cli.printf("                                                            - create a chat room; -protected prompts for a password\n")
	cli.printf("  addparticipant -room ROOM_ID -username USERNAME|EMAIL     - let a user into a room\n")
}

// promptPassword reads a password without echo. An empty answer prints usage.
func (cli *commandLine) promptPassword(usage func()) (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's display name.")
	addUserRole := addUserCmd.String("role", "", "One of admin, teacher, student.")

	createRoomCmd := flag.NewFlagSet("createroom", flag.ContinueOnError)
	createRoomName := createRoomCmd.String("name", "", "The room's name.")
	createRoomCreator := createRoomCmd.String("creator", "", "The creator's username or email.")
	createRoomCapacity := createRoomCmd.Int("capacity", 0, "Maximum simultaneous participants (0: default).")
	createRoomEncrypted := createRoomCmd.Bool("encrypted", false, "Encrypt stored messages.")
	createRoomProtected := createRoomCmd.Bool("protected", false, "Prompt for a join password.")

	addParticipantCmd := flag.NewFlagSet("addparticipant", flag.ContinueOnError)
	addParticipantRoom := addParticipantCmd.String("room", "", "The room's ID.")
	addParticipantUname := addParticipantCmd.String("username", "", "The user's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		roles, ok := roleSets[*addUserRole]
		if !ok {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(user.NewUser{
			Name:     *addUserName,
			Username: *addUserUname,
			Email:    *addUserEmail,
			Password: pwd,
			Roles:    roles,
		})

	case "createroom":
		if err := createRoomCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *createRoomName == "" || *createRoomCreator == "" {
			createRoomCmd.Usage()
			return errHelp
		}
		nr := chat.NewRoom{
			Name:            *createRoomName,
			MaxParticipants: *createRoomCapacity,
			IsEncrypted:     *createRoomEncrypted,
		}
		if *createRoomProtected {
			pwd, err := cli.promptPassword(createRoomCmd.Usage)
			if err != nil {
				return err
			}
			nr.Password = pwd
		}
		return cli.createRoom(*createRoomCreator, nr)

	case "addparticipant":
		if err := addParticipantCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addParticipantRoom == "" || *addParticipantUname == "" {
			addParticipantCmd.Usage()
			return errHelp
		}
		return cli.addParticipant(*addParticipantRoom, *addParticipantUname)

	default:
		cli.printUsage()
		return errHelp
	}
}

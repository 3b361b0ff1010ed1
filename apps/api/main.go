package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	echoapi "github.com/trezcool/masomo-chat/apps/api/echo"
	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
	"github.com/trezcool/masomo-chat/services/broadcast"
	"github.com/trezcool/masomo-chat/services/logger"
	"github.com/trezcool/masomo-chat/storage/database"
	"github.com/trezcool/masomo-chat/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %v", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	chat.InitValidators(validate, translator)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate)

	cipher, err := chat.NewAESCipher(conf.Chat.EncryptionKey)
	if err != nil {
		logger.Fatal("setting up message cipher", err)
	}
	tokens := chat.NewRoomTokens(conf.SecretKey, conf.AppName, conf.Chat.RoomTokenTTL)

	// local fan-out, mirrored to the other instances when NATS is configured
	hub := broadcastsvc.NewHub()
	var bcast chat.Broadcaster = hub
	if conf.NATS.URL != "" {
		nc, err := nats.Connect(conf.NATS.URL, nats.Name(conf.AppName+" chat"))
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to NATS: %v", err), err)
		}
		defer nc.Drain()

		relay := broadcastsvc.NewRelay(hub, nc, conf.NATS.SubjectPrefix, logger)
		if err = relay.Start(); err != nil {
			logger.Fatal("starting NATS relay", err)
		}
		defer relay.Stop()
		bcast = relay
	}

	chatSvc := chat.NewService(chat.ServiceDeps{
		Repo:        sqlxrepos.NewChatRepository(db),
		Verifier:    tokens,
		Issuer:      tokens,
		Cipher:      cipher,
		FloodGuard:  chat.NewFloodGuard(conf.Chat.MaxMessagesPerWindow, conf.Chat.FloodWindow),
		Registry:    chat.NewRegistry(),
		Broadcaster: bcast,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Settings: chat.Settings{
			MaxMessageLength:    conf.Chat.MaxMessageLength,
			DefaultHistoryCount: conf.Chat.DefaultHistoryCount,
			MaxHistoryCount:     conf.Chat.MaxHistoryCount,
			DefaultRoomCapacity: conf.Chat.DefaultRoomCapacity,
		},
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Address, shutdown, &echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		ChatSvc:    chatSvc,
		Hub:        hub,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

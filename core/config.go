package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address            string
		DebugHost          string
		Host               string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		AllowedOrigins     []string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ChatConfig struct {
		EncryptionKey        string
		MaxMessagesPerWindow int
		FloodWindow          time.Duration
		MaxMessageLength     int
		DefaultHistoryCount  int
		MaxHistoryCount      int
		RoomTokenTTL         time.Duration
		DefaultRoomCapacity  int
	}

	NATSConfig struct {
		URL           string
		SubjectPrefix string
	}

	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Database DatabaseConfig
		Chat     ChatConfig
		NATS     NATSConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return dbc.Host + ":" + dbc.Port
}

// NewConfig loads the app configuration: defaults, then `config/.env.<env>` (if any), then env vars
// prefixed with the current ENV (eg. `DEV_DATABASE_HOST`).
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Masomo")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.allowedOrigins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "masomo")
	conf.SetDefault("database.user", "masomo")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("chat.encryptionKey", "6f1d3c0e5a4b4f7e9a2b8c1d0e3f4a5b")
	conf.SetDefault("chat.maxMessagesPerWindow", 30)
	conf.SetDefault("chat.floodWindow", 60*time.Second)
	conf.SetDefault("chat.maxMessageLength", 1000)
	conf.SetDefault("chat.defaultHistoryCount", 50)
	conf.SetDefault("chat.maxHistoryCount", 200)
	conf.SetDefault("chat.roomTokenTTL", time.Hour)
	conf.SetDefault("chat.defaultRoomCapacity", 50)

	conf.SetDefault("nats.url", "")
	conf.SetDefault("nats.subjectPrefix", "masomo.chat.room")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Address:            conf.GetString("server.address"),
			DebugHost:          conf.GetString("server.debugHost"),
			Host:               conf.GetString("server.host"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
			AllowedOrigins:     conf.GetStringSlice("server.allowedOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Chat: ChatConfig{
			EncryptionKey:        conf.GetString("chat.encryptionKey"),
			MaxMessagesPerWindow: conf.GetInt("chat.maxMessagesPerWindow"),
			FloodWindow:          conf.GetDuration("chat.floodWindow"),
			MaxMessageLength:     conf.GetInt("chat.maxMessageLength"),
			DefaultHistoryCount:  conf.GetInt("chat.defaultHistoryCount"),
			MaxHistoryCount:      conf.GetInt("chat.maxHistoryCount"),
			RoomTokenTTL:         conf.GetDuration("chat.roomTokenTTL"),
			DefaultRoomCapacity:  conf.GetInt("chat.defaultRoomCapacity"),
		},
		NATS: NATSConfig{
			URL:           conf.GetString("nats.url"),
			SubjectPrefix: conf.GetString("nats.subjectPrefix"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env=%s, build=%s, debug=%v)", c.AppName, c.Env, c.Build, c.Debug)
}

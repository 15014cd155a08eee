// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	engine "github.com/jason-s-yu/marbles/engine"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port          string
	DatabaseURL   string // empty disables game records
	RedisAddr     string // empty disables the historian
	RedisPassword string
	RedisDB       int

	LogLevel  logrus.Level
	LogFormat string // "text" or "json"

	TurnTimer         time.Duration // 0 disables auto-play
	RequireHomeChoice bool
	HandSize          uint8

	OriginAllowlist []string
}

// Load reads a .env file if one exists, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	cfg := Config{
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.RedisDB, err = atoi("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	cfg.LogLevel, err = logrus.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}

	sec, err := atoi("TURN_TIMER_SEC", 30)
	if err != nil {
		return Config{}, err
	}
	if sec < 0 {
		return Config{}, fmt.Errorf("TURN_TIMER_SEC: must not be negative, got %d", sec)
	}
	cfg.TurnTimer = time.Duration(sec) * time.Second

	hand, err := atoi("HAND_SIZE", engine.MaxHandSize)
	if err != nil {
		return Config{}, err
	}
	if hand < 1 || hand > engine.MaxHandSize {
		return Config{}, fmt.Errorf("HAND_SIZE: must be 1..%d, got %d", engine.MaxHandSize, hand)
	}
	cfg.HandSize = uint8(hand)

	if v := os.Getenv("REQUIRE_HOME_CHOICE"); v != "" {
		if cfg.RequireHomeChoice, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("REQUIRE_HOME_CHOICE: %w", err)
		}
	}

	for _, o := range strings.Split(os.Getenv("ORIGIN_ALLOWLIST"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.OriginAllowlist = append(cfg.OriginAllowlist, o)
		}
	}
	return cfg, nil
}

// NewLogger builds the process logger.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

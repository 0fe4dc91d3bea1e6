package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	ShareLinkBase string
	// AllowRevote lets a participant change their vote before reveal.
	AllowRevote  bool
	EmptyRoomTTL time.Duration
	DevLog       bool
}

// Load reads .env if present, then the environment. Unset keys fall back to
// defaults suitable for local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          8080,
		ShareLinkBase: "http://localhost:8080",
		AllowRevote:   true,
		EmptyRoomTTL:  30 * time.Minute,
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("SHARE_LINK_BASE"); v != "" {
		cfg.ShareLinkBase = v
	}
	if v := os.Getenv("ALLOW_REVOTE_BEFORE_REVEAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse ALLOW_REVOTE_BEFORE_REVEAL: %w", err)
		}
		cfg.AllowRevote = b
	}
	if v := os.Getenv("EMPTY_ROOM_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMPTY_ROOM_TTL: %w", err)
		}
		cfg.EmptyRoomTTL = d
	}
	if v := os.Getenv("LOG_DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse LOG_DEV: %w", err)
		}
		cfg.DevLog = b
	}

	return cfg, nil
}

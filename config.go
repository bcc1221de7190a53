package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server runtime settings. Values come from the
// environment with sanitized defaults.
type Config struct {
	Port            string
	DBPath          string
	DisplayTZOffset int // minutes east of UTC for rendered times
	HistoryLimit    int // GET /api/messages default
	ReplayLimit     int // join-time history replay
	SearchLimit     int
	ReaperInterval  time.Duration
	SessionMaxAge   time.Duration
	DefaultRooms    []string
}

func defaultConfig() Config {
	return Config{
		Port:            ":3000",
		DBPath:          "xeroxchat.db",
		DisplayTZOffset: 6 * 60, // Asia/Dhaka
		HistoryLimit:    50,
		ReplayLimit:     20,
		SearchLimit:     20,
		ReaperInterval:  time.Hour,
		SessionMaxAge:   24 * time.Hour,
		DefaultRooms:    []string{"general", "tech", "random"},
	}
}

// LoadConfig builds the configuration from the environment, falling back
// to defaults for anything unset or unparsable.
func LoadConfig() Config {
	cfg := defaultConfig()

	if port := os.Getenv("CHAT_PORT"); port != "" {
		if port[0] != ':' {
			port = ":" + port
		}
		cfg.Port = port
	}

	if path := os.Getenv("CHAT_DB_PATH"); path != "" {
		cfg.DBPath = path
	}

	if raw := os.Getenv("CHAT_TZ_OFFSET_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= -14*60 && v <= 14*60 {
			cfg.DisplayTZOffset = v
		}
	}

	if raw := os.Getenv("CHAT_HISTORY_LIMIT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.HistoryLimit = v
		}
	}

	return cfg
}

// DisplayLocation returns the fixed zone used for rendered timestamps.
func (c Config) DisplayLocation() *time.Location {
	return time.FixedZone("display", c.DisplayTZOffset*60)
}

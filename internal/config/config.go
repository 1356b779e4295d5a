package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	LookupBaseURL string
	RosterBaseURL string
	DBPath        string
	ServerPort    string
	LogLevel      string

	// HomeGuild is the alliance's own guild, never labeled in war logs.
	HomeGuild string
	// RivalGuild is the hostile guild tracked separately in vs-rival stats.
	RivalGuild string
	// AllianceGuilds are the tracked sub-guilds players get reclassified into.
	AllianceGuilds []string

	// SlowMode widens resolver throttling to avoid lookup rate limits.
	SlowMode bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		LookupBaseURL:  getEnv("LOOKUP_BASE_URL", "https://www.sa.playblackdesert.com"),
		RosterBaseURL:  getEnv("ROSTER_BASE_URL", ""),
		DBPath:         getEnv("DB_PATH", "nodewar.db"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HomeGuild:      getEnv("HOME_GUILD", "Allyance"),
		RivalGuild:     getEnv("RIVAL_GUILD", "Chernobyl"),
		AllianceGuilds: splitList(getEnv("ALLIANCE_GUILDS", "Allyance,Allyance_II,Allyance_III")),
		SlowMode:       getEnv("SLOW_MODE", "false") == "true",
	}

	if cfg.RosterBaseURL == "" {
		cfg.RosterBaseURL = cfg.LookupBaseURL
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("home_guild", cfg.HomeGuild).
		Str("rival_guild", cfg.RivalGuild).
		Strs("alliance_guilds", cfg.AllianceGuilds).
		Bool("slow_mode", cfg.SlowMode).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const MemoryDatabase = ":memory:"

type Config struct {
	DiscordToken string

	CommandPrefix   string
	CommandCooldown time.Duration
	HookCooldown    time.Duration

	// OwnerID es el contacto que aparece en el mensaje de error genérico y el
	// único autorizado a usar echo.
	OwnerID string

	DatabasePath string

	Statuses       []string
	StatusInterval time.Duration

	AuditFeedAddr  string
	// AuditFeedToken da acceso al feed completo; sin él solo se ve la consola.
	AuditFeedToken string
	SendInterval   time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		CommandPrefix:  getEnv("BOT_COMMAND_PREFIX", "!"),
		OwnerID:        strings.TrimSpace(os.Getenv("BOT_OWNER_ID")),
		DatabasePath:   getEnv("DATABASE_PATH", "data/akrasia.db"),
		Statuses:       parseList(getEnv("BOT_STATUSES", "with electrons")),
		AuditFeedAddr:  strings.TrimSpace(os.Getenv("AUDIT_FEED_ADDR")),
		AuditFeedToken: strings.TrimSpace(os.Getenv("AUDIT_FEED_TOKEN")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.CommandCooldown, err = seconds("BOT_COMMAND_COOLDOWN_SECONDS", 2); err != nil {
		return nil, err
	}
	if cfg.HookCooldown, err = seconds("BOT_HOOK_COOLDOWN_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.StatusInterval, err = seconds("BOT_STATUS_INTERVAL_SECONDS", 300); err != nil {
		return nil, err
	}
	if cfg.SendInterval, err = seconds("BOT_SEND_INTERVAL_SECONDS", 0.5); err != nil {
		return nil, err
	}

	if cfg.CommandPrefix == "" {
		return nil, fmt.Errorf("config: BOT_COMMAND_PREFIX must not be empty")
	}

	return cfg, nil
}

// FallbackMessage es la respuesta fija cuando un comando falla.
func (c *Config) FallbackMessage() string {
	if c.OwnerID == "" {
		return "Something went wrong (please contact the bot owner via DMs)"
	}
	return fmt.Sprintf("Something went wrong (please contact <@%s> via DMs)", c.OwnerID)
}

func (c *Config) UsesMemoryDatabase() bool {
	return c.DatabasePath == MemoryDatabase
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func seconds(key string, fallback float64) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Duration(fallback * float64(time.Second)), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("config: %s: invalid number of seconds %q", key, raw)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

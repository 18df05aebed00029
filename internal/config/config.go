package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	PolicyStrict  = "strict"
	PolicyPartial = "partial"
)

type Config struct {
	SourceDir           string
	SourcePrefix        string
	ArchiveOriginalsDir string
	ArchiveParsedDir    string
	GFACountDir         string
	GFADataDir          string
	DevMode             bool

	DBPath      string
	OutputDir   string
	MappingPath string
	BatchPolicy string

	LogLevel string
	LogPath  string

	WatchSchedule string
	WatchFSNotify bool

	AlertProvider   string
	AlertSMTPHost   string
	AlertSMTPPort   int
	AlertFrom       string
	AlertRecipients []string
	AlertTail       int
	AlertLogPath    string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	logPath := getEnv("LOG_PATH", filepath.Join(cwd, "data", "logs", "annexparse.log"))

	cfg := Config{
		SourceDir:           getEnv("SOURCE_DIR", filepath.Join(cwd, "data", "incoming")),
		SourcePrefix:        getEnv("SOURCE_PREFIX", "BUL_ANNEX"),
		ArchiveOriginalsDir: getEnv("ARCHIVE_ORIGINALS_DIR", filepath.Join(cwd, "data", "archive", "originals")),
		ArchiveParsedDir:    getEnv("ARCHIVE_PARSED_DIR", filepath.Join(cwd, "data", "archive", "parsed")),
		GFACountDir:         getEnv("GFA_COUNT_DIR", filepath.Join(cwd, "out", "gfa", "count")),
		GFADataDir:          getEnv("GFA_DATA_DIR", filepath.Join(cwd, "out", "gfa", "data")),
		DevMode:             getEnvBool("DEV_MODE", false),

		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		MappingPath: getEnv("MAPPING_PATH", ""),
		BatchPolicy: strings.ToLower(strings.TrimSpace(getEnv("BATCH_POLICY", PolicyStrict))),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  logPath,

		WatchSchedule: getEnv("WATCH_SCHEDULE", "@every 5m"),
		WatchFSNotify: getEnvBool("WATCH_FSNOTIFY", true),

		AlertProvider:   strings.ToLower(strings.TrimSpace(getEnv("ALERT_PROVIDER", "smtp"))),
		AlertSMTPHost:   getEnv("ALERT_SMTP_HOST", "localhost"),
		AlertSMTPPort:   getEnvInt("ALERT_SMTP_PORT", 25),
		AlertFrom:       getEnv("ALERT_FROM", ""),
		AlertRecipients: getEnvList("ALERT_RECIPIENTS"),
		AlertTail:       getEnvInt("ALERT_TAIL", 4),
		AlertLogPath:    getEnv("ALERT_LOG_PATH", logPath),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
	}

	if cfg.BatchPolicy != PolicyStrict && cfg.BatchPolicy != PolicyPartial {
		return Config{}, fmt.Errorf("unsupported BATCH_POLICY: %s", cfg.BatchPolicy)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// RequireDirs checks the directories a processing run reads from or writes to.
func (c Config) RequireDirs() error {
	dirs := []struct{ name, value string }{
		{"SOURCE_DIR", c.SourceDir},
		{"ARCHIVE_ORIGINALS_DIR", c.ArchiveOriginalsDir},
		{"ARCHIVE_PARSED_DIR", c.ArchiveParsedDir},
		{"GFA_COUNT_DIR", c.GFACountDir},
		{"GFA_DATA_DIR", c.GFADataDir},
	}
	for _, d := range dirs {
		if err := c.Require(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string) []string {
	value := getEnv(key, "")
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"eld-planner/internal/hos"
)

type Config struct {
	DatabaseURL          string
	NATSURL              string
	SubjectPrefix        string
	QueueGroup           string
	Workers              int
	RecapRefreshInterval time.Duration
	Location             *time.Location
	Cycle                hos.CycleType
	LogLevel             string
	LogNATSSubjects      bool
	MetricsAddr          string
	ConnectAttempts      uint
}

// Load reads .env (if present) and the process environment. A missing database
// is not an error here; commands that need one check DatabaseURL themselves.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}
	cfg.DatabaseURL = dsn

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")

	cfg.SubjectPrefix = strings.Trim(getenvDefault("NATS_SUBJECT_PREFIX", "eld"), ". ")
	if cfg.SubjectPrefix == "" || strings.ContainsAny(cfg.SubjectPrefix, " *>") {
		return nil, fmt.Errorf("invalid NATS_SUBJECT_PREFIX: %q", os.Getenv("NATS_SUBJECT_PREFIX"))
	}
	cfg.QueueGroup = getenvDefault("NATS_QUEUE_GROUP", "eld-planner")

	// Concurrent plan requests
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WORKERS: %q", v)
		}
		cfg.Workers = n
	} else {
		cfg.Workers = 4
	}

	// Recap refresh interval (seconds); 0 disables the refresher
	if v := os.Getenv("RECAP_REFRESH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid RECAP_REFRESH_INTERVAL_SEC: %q", v)
		}
		cfg.RecapRefreshInterval = time.Duration(sec) * time.Second
	} else {
		cfg.RecapRefreshInterval = 5 * time.Minute
	}

	// Startup connection attempts for Postgres and NATS
	if v := os.Getenv("CONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid CONNECT_ATTEMPTS: %q", v)
		}
		cfg.ConnectAttempts = uint(n)
	} else {
		cfg.ConnectAttempts = 10
	}

	cycle, err := hos.ParseCycle(os.Getenv("HOS_CYCLE"))
	if err != nil {
		return nil, fmt.Errorf("invalid HOS_CYCLE: %q", os.Getenv("HOS_CYCLE"))
	}
	cfg.Cycle = cycle

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Home terminal time zone; daily logs start at its midnight
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// Rules returns the HOS rule set for the configured cycle.
func (c *Config) Rules() hos.Rules { return hos.RulesFor(c.Cycle) }

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

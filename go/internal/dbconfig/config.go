// Package dbconfig opens the Postgres pool behind the ledger, sequencer,
// user and audit repositories.
package dbconfig

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection and pool settings.
type Config struct {
	// URL, when set, is used as is and the discrete fields are ignored.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MaxConnIdleTime time.Duration
}

// NewConfigFromEnv reads DATABASE_URL or the DB_* variables, with local
// development defaults.
func NewConfigFromEnv() Config {
	return Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "gavel"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// DSN returns the connection URL with credentials escaped.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

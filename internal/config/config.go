// Package config loads the small set of environment variables this
// process needs to start. A full CLI flag surface is explicitly out of
// scope (spec §1); this is the minimal ambient configuration layer
// every real deployment of the teacher's stack still carries.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is materialized once at startup and passed by value into the
// components that need it; there is no global mutable config
// singleton.
type Config struct {
	// ListenAddr is the address the HTTP+WS server binds.
	ListenAddr string
	// DataDir is where per-session .log/.snapshot.json.gz files live.
	DataDir string
	// GlobalSessionCap and PerSessionUserCap are the §4.E defaults,
	// overridable for testing/deployment tuning.
	GlobalSessionCap  int
	PerSessionUserCap int
	// CORSOrigin is the single allowed origin for the admin/metrics
	// surface.
	CORSOrigin string
	// AuditDBPath, if non-empty, enables the sqlite structured-event
	// audit trail (§4.G).
	AuditDBPath string
	// ValkeyAddr, if non-empty, enables mirroring structured event
	// records onto a Valkey stream.
	ValkeyAddr   string
	ValkeyStream string
	// ShutdownGrace bounds how long graceful shutdown waits for
	// session actors to drain before the process exits anyway.
	ShutdownGrace time.Duration
}

// Load reads a .env file if present (local development convenience),
// then materializes Config from the environment, applying the same
// defaults as the spec where a variable is unset.
func Load() Config {
	_ = godotenv.Load() // absence of .env is not an error

	return Config{
		ListenAddr:        getEnv("COLLAB_LISTEN_ADDR", ":8080"),
		DataDir:           getEnv("COLLAB_DATA_DIR", "data"),
		GlobalSessionCap:  getEnvInt("COLLAB_GLOBAL_SESSION_CAP", 20),
		PerSessionUserCap: getEnvInt("COLLAB_PER_SESSION_USER_CAP", 10),
		CORSOrigin:        getEnv("COLLAB_CORS_ORIGIN", "http://127.0.0.1:5173"),
		AuditDBPath:       os.Getenv("COLLAB_AUDIT_DB_PATH"),
		ValkeyAddr:        os.Getenv("COLLAB_VALKEY_ADDR"),
		ValkeyStream:      getEnv("COLLAB_VALKEY_STREAM", "collab:events"),
		ShutdownGrace:     getEnvDuration("COLLAB_SHUTDOWN_GRACE", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

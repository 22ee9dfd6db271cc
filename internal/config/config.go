// Package config provides configuration management for the daemon.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/tuxhw/tuxd/internal/services/backlight"
	"github.com/tuxhw/tuxd/internal/services/fanctl"
	"github.com/tuxhw/tuxd/internal/services/idle"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Hardware paths
	DevicePath string // fan control device node
	LEDPath    string // LED class directory for backlight detection
	InputDir   string // input event devices for the idle monitor

	// Control loop cadences
	FanTick     time.Duration
	SyncTick    time.Duration
	AutoOffTick time.Duration

	// Backlight fade defaults
	FadeEnabled    bool
	FadeDuration   time.Duration
	AutoOffTimeout time.Duration

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4600"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./tuxd.db"),

		// Hardware
		DevicePath: getEnv("CONTROL_DEVICE", fanctl.DefaultDevicePath),
		LEDPath:    getEnv("LED_PATH", backlight.DefaultLEDPath),
		InputDir:   getEnv("INPUT_DIR", idle.DefaultInputDir),

		// Control loop
		FanTick:     time.Duration(getEnvInt("FAN_TICK_MS", 1000)) * time.Millisecond,
		SyncTick:    time.Duration(getEnvInt("SYNC_TICK_MS", 2000)) * time.Millisecond,
		AutoOffTick: time.Duration(getEnvInt("AUTO_OFF_TICK_MS", 1000)) * time.Millisecond,

		// Backlight
		FadeEnabled:    getEnvBool("FADE_ENABLED", true),
		FadeDuration:   time.Duration(getEnvInt("FADE_DURATION_MS", 500)) * time.Millisecond,
		AutoOffTimeout: time.Duration(getEnvInt("AUTO_OFF_TIMEOUT_SEC", 30)) * time.Second,

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

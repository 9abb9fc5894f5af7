package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minEvalTimeoutMS = 500

// Config holds all configuration for the tabaudio server and popup.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP control API
	BindAddr          string
	PortCandidates    []string
	PortAutoFallback  bool
	EvalTimeoutMS     int
	StateConcurrency  int
	TabRulesPath      string
	OTLPEndpoint      string
	PopupTickInterval time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Optional managed browser
	LaunchBrowser bool
	BrowserPath   string
	ProfileDir    string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:          getEnvOrDefault("TABAUDIO_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    getEnvListOrDefault("TABAUDIO_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback:  getEnvBoolOrDefault("TABAUDIO_PORT_AUTO_FALLBACK", true),
		EvalTimeoutMS:     getEnvIntOrDefault("TABAUDIO_EVAL_TIMEOUT_MS", 3000),
		StateConcurrency:  getEnvIntOrDefault("TABAUDIO_STATE_CONCURRENCY", 4),
		TabRulesPath:      getEnvOrDefault("TABAUDIO_TAB_RULES", ""),
		OTLPEndpoint:      getEnvOrDefault("TABAUDIO_OTLP_ENDPOINT", ""),
		PopupTickInterval: time.Duration(getEnvIntOrDefault("TABAUDIO_POPUP_TICK_MS", 1000)) * time.Millisecond,
		LogLevel:          strings.ToLower(getEnvOrDefault("TABAUDIO_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("TABAUDIO_LOG_FILE", "logs/tabaudio.log"),
		LaunchBrowser:     getEnvBoolOrDefault("TABAUDIO_LAUNCH_BROWSER", false),
		BrowserPath:       getEnvOrDefault("TABAUDIO_BROWSER_PATH", ""),
		ProfileDir:        getEnvOrDefault("TABAUDIO_PROFILE_DIR", "./browser_profile"),
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.EvalTimeoutMS < minEvalTimeoutMS {
		c.EvalTimeoutMS = minEvalTimeoutMS
	}
	if c.StateConcurrency < 1 {
		c.StateConcurrency = 1
	}
	if c.PopupTickInterval <= 0 {
		c.PopupTickInterval = time.Second
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.CDPAddress == "" {
		return fmt.Errorf("config: CHROMIUM_CDP_ADDRESS is empty")
	}
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("config: CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint (the /json/* discovery base).
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// EvalTimeout returns the per-call page evaluation deadline.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

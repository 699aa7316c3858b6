// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Server ServerConfig
	Admin  AdminConfig
	Plex   PlexConfig
	OAuth  OAuthConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds persistent storage configuration.
type DataConfig struct {
	// BasePath is the directory for the database and the settings file.
	BasePath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name         string
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed CORS origins for the dashboard frontend

	// AdvertiseMDNS advertises the join page on the local network.
	AdvertiseMDNS bool
}

// AdminConfig holds admin API authentication configuration.
type AdminConfig struct {
	// Token is the static bearer token protecting the admin endpoints.
	// Required in production.
	Token string
}

// PlexConfig holds the plex.tv client configuration.
// Server URL and token can also be set at runtime through settings;
// these values act as the initial defaults.
type PlexConfig struct {
	ServerURL string // Plex Media Server URL (e.g. http://plex.local:32400)
	Token     string // Admin token for the Plex server
	ClientID  string // X-Plex-Client-Identifier; generated if empty
	Product   string // X-Plex-Product shown on the Plex consent screen
}

// OAuthConfig tunes the PIN-grant redemption flow.
type OAuthConfig struct {
	PollInterval       time.Duration // Interval between PIN checks (default: 2s)
	PopupCheckInterval time.Duration // Interval between popup closed-checks (default: 1s)
	AttemptTimeout     time.Duration // Wall-clock ceiling per attempt (default: 5m)
	StateTTL           time.Duration // Server-side state token lifetime (default: 10m)
	// StopOnPollError stops polling on the first transport error instead of
	// retrying until the attempt timeout. Conservative default: true.
	StopOnPollError bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for data storage")
	serverName := flag.String("server-name", "", "Name for the server")
	adminToken := flag.String("admin-token", "", "Bearer token for admin endpoints")

	// Plex flags
	plexURL := flag.String("plex-url", "", "Plex Media Server URL")
	plexToken := flag.String("plex-token", "", "Plex admin token")
	plexClientID := flag.String("plex-client-id", "", "X-Plex-Client-Identifier")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise the server via mDNS (default: true)")

	// OAuth flags
	pollInterval := flag.String("oauth-poll-interval", "", "PIN poll interval (default: 2s)")
	popupCheckInterval := flag.String("oauth-popup-check-interval", "", "Popup closed-check interval (default: 1s)")
	attemptTimeout := flag.String("oauth-attempt-timeout", "", "Per-attempt wall-clock ceiling (default: 5m)")
	stateTTL := flag.String("oauth-state-ttl", "", "State token lifetime (default: 10m)")
	stopOnPollError := flag.String("oauth-stop-on-poll-error", "", "Stop polling on transport error (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name:          getConfigValue(*serverName, "SERVER_NAME", "Komandorr"),
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
		},
		Admin: AdminConfig{
			Token: getConfigValue(*adminToken, "ADMIN_TOKEN", ""),
		},
		Plex: PlexConfig{
			ServerURL: getConfigValue(*plexURL, "PLEX_SERVER_URL", ""),
			Token:     getConfigValue(*plexToken, "PLEX_TOKEN", ""),
			ClientID:  getConfigValue(*plexClientID, "PLEX_CLIENT_ID", ""),
			Product:   getConfigValue("", "PLEX_PRODUCT", "Komandorr"),
		},
		OAuth: OAuthConfig{
			StopOnPollError: getBoolConfigValue(*stopOnPollError, "OAUTH_STOP_ON_POLL_ERROR", true),
		},
	}

	corsValue := getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")
	for _, origin := range strings.Split(corsValue, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
		}
	}

	// Parse server timeouts.
	var err error
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}

	// Parse OAuth durations.
	if cfg.OAuth.PollInterval, err = parseDurationValue(*pollInterval, "OAUTH_POLL_INTERVAL", "2s"); err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}
	if cfg.OAuth.PopupCheckInterval, err = parseDurationValue(*popupCheckInterval, "OAUTH_POPUP_CHECK_INTERVAL", "1s"); err != nil {
		return nil, fmt.Errorf("invalid popup check interval: %w", err)
	}
	if cfg.OAuth.AttemptTimeout, err = parseDurationValue(*attemptTimeout, "OAUTH_ATTEMPT_TIMEOUT", "5m"); err != nil {
		return nil, fmt.Errorf("invalid attempt timeout: %w", err)
	}
	if cfg.OAuth.StateTTL, err = parseDurationValue(*stateTTL, "OAUTH_STATE_TTL", "10m"); err != nil {
		return nil, fmt.Errorf("invalid state TTL: %w", err)
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.App.Environment == "production" && c.Admin.Token == "" {
		return errors.New("ADMIN_TOKEN is required in production")
	}

	if c.OAuth.PollInterval <= 0 || c.OAuth.PopupCheckInterval <= 0 || c.OAuth.AttemptTimeout <= 0 {
		return errors.New("oauth intervals must be positive")
	}

	// Plex server URL and token can be empty at startup - they can be
	// configured at runtime through settings.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Komandorr", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

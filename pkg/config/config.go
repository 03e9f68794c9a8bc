package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the yuvd node.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Data Directory
	DataDir string

	// Bitcoin chain-client collaborator
	BitcoinRPCURL  string
	BitcoinRPCUser string
	BitcoinRPCPass string

	// Core pipeline knobs, per the enumerated dynamic-config list.
	ConfirmationsDepth  int           // reorg window = confirmations depth
	PoolSize            int           // isolated-check worker count
	PageSize            int           // validated only; storage pages roll over at a fixed 64 KiB
	MaxConfirmationTime time.Duration // attacher TTL sweep threshold
	MaxRequestSize      int           // passed to the controller; no request size is checked against it
	InvShareInterval    time.Duration // inventory broadcast cadence

	// ReversibleFreeze makes the isolated checker accept Unfreeze
	// announcements. Attaching an Unfreeze clears no frozen output, and the
	// OP_RETURN codec does not encode or decode that variant, so freezes
	// stay in effect whether or not this is set.
	ReversibleFreeze bool

	LogLevel string

	// Optional mirrors, disabled unless configured.
	AnalyticsDatabaseURL    string
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string
}

// Load reads configuration from environment variables, applying the
// documented defaults for every knob enumerated in the design notes.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("YUVD_LISTEN_ADDR", "127.0.0.1:8332"),
		MetricsAddr: getEnv("YUVD_METRICS_ADDR", "127.0.0.1:9332"),

		DataDir: getEnv("YUVD_DATA_DIR", "./data"),

		BitcoinRPCURL:  getEnv("BITCOIN_RPC_URL", ""),
		BitcoinRPCUser: getEnv("BITCOIN_RPC_USER", ""),
		BitcoinRPCPass: getEnv("BITCOIN_RPC_PASS", ""),

		ConfirmationsDepth:  getEnvInt("YUVD_CONFIRMATIONS_DEPTH", 6),
		PoolSize:            getEnvInt("YUVD_POOL_SIZE", 4),
		PageSize:            getEnvInt("YUVD_PAGE_SIZE", 100),
		MaxConfirmationTime: getEnvDuration("YUVD_MAX_CONFIRMATION_TIME", 24*time.Hour),
		MaxRequestSize:      getEnvInt("YUVD_MAX_REQUEST_SIZE", 1<<20),
		InvShareInterval:    getEnvDuration("YUVD_INV_SHARE_INTERVAL", 30*time.Second),

		ReversibleFreeze: getEnvBool("YUVD_REVERSIBLE_FREEZE", false),

		LogLevel: getEnv("YUVD_LOG_LEVEL", "info"),

		AnalyticsDatabaseURL:    getEnv("YUVD_ANALYTICS_DATABASE_URL", ""),
		FirestoreEnabled:        getEnvBool("YUVD_FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("YUVD_FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}

	if overlay := getEnv("YUVD_CONFIG_FILE", ""); overlay != "" {
		if err := cfg.mergeYAMLFile(overlay); err != nil {
			return nil, fmt.Errorf("load config overlay: %w", err)
		}
	}

	return cfg, nil
}

// mergeYAMLFile applies a YAML overlay on top of the env-derived defaults.
// Only ListenAddr, MetricsAddr, DataDir, BitcoinRPCURL and the six core
// pipeline knobs are taken from the file, and only when non-zero there;
// every other field keeps its env-derived value.
func (c *Config) mergeYAMLFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	mergeNonZero(c, &overlay)
	return nil
}

func mergeNonZero(dst, src *Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.MetricsAddr != "" {
		dst.MetricsAddr = src.MetricsAddr
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.BitcoinRPCURL != "" {
		dst.BitcoinRPCURL = src.BitcoinRPCURL
	}
	if src.ConfirmationsDepth != 0 {
		dst.ConfirmationsDepth = src.ConfirmationsDepth
	}
	if src.PoolSize != 0 {
		dst.PoolSize = src.PoolSize
	}
	if src.PageSize != 0 {
		dst.PageSize = src.PageSize
	}
	if src.MaxConfirmationTime != 0 {
		dst.MaxConfirmationTime = src.MaxConfirmationTime
	}
	if src.MaxRequestSize != 0 {
		dst.MaxRequestSize = src.MaxRequestSize
	}
	if src.InvShareInterval != 0 {
		dst.InvShareInterval = src.InvShareInterval
	}
}

// Validate checks that the configuration is sufficient to start the node.
func (c *Config) Validate() error {
	var errs []string

	if c.BitcoinRPCURL == "" {
		errs = append(errs, "BITCOIN_RPC_URL is required but not set")
	}
	if c.ConfirmationsDepth < 1 {
		errs = append(errs, "YUVD_CONFIRMATIONS_DEPTH must be at least 1")
	}
	if c.PoolSize < 1 {
		errs = append(errs, "YUVD_POOL_SIZE must be at least 1")
	}
	if c.PageSize < 1 {
		errs = append(errs, "YUVD_PAGE_SIZE must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package startup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dataset-tagger/internal/hasher"
	"dataset-tagger/internal/logging"

	"gopkg.in/yaml.v3"
)

// Store backends accepted in the store setting
const (
	StoreSidecar = "sidecar"
	StoreSQLite  = "sqlite"
	StoreNone    = "none"
)

// Config holds all application configuration
type Config struct {
	DatasetDir  string `yaml:"dataset_dir"`
	TagDatabase string `yaml:"tag_database"`
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`

	ThumbnailCacheMB int `yaml:"thumbnail_cache_mb"`
	ThumbnailSize    int `yaml:"thumbnail_size"`
	ThumbnailWorkers int `yaml:"thumbnail_workers"`
	ScanWorkers      int `yaml:"scan_workers"`
	ScanQueue        int `yaml:"scan_queue"`

	// Dedupe is "exact" or "perceptual"
	Dedupe string `yaml:"dedupe"`

	Store        string `yaml:"store"`
	DatabasePath string `yaml:"database_path"`

	BackupDir  string `yaml:"backup_dir"`
	BackupKeep int    `yaml:"backup_keep"`

	AutosaveCron string `yaml:"autosave_cron"`
	BackupCron   string `yaml:"backup_cron"`

	Watch           bool `yaml:"watch"`
	MetricsEnabled  bool `yaml:"metrics_enabled"`
	LogHealthChecks bool `yaml:"log_health_checks"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() Config {
	return Config{
		DatasetDir:       ".",
		Port:             "8080",
		LogLevel:         "info",
		ThumbnailCacheMB: 512,
		ThumbnailSize:    800,
		ScanQueue:        256,
		Dedupe:           string(hasher.ModeExact),
		Store:            StoreSidecar,
		BackupKeep:       5,
		AutosaveCron:     "@every 5m",
		Watch:            true,
		MetricsEnabled:   true,
		LogHealthChecks:  false,
	}
}

// CacheBytes is the thumbnail cache budget in bytes
func (c *Config) CacheBytes() int64 {
	return int64(c.ThumbnailCacheMB) << 20
}

// DedupeMode is the hasher mode named by Dedupe
func (c *Config) DedupeMode() hasher.Mode {
	return hasher.Mode(c.Dedupe)
}

// Load reads the YAML file at path (if any), applies environment overrides,
// then overrides (command-line flags), and validates the result. Relative
// paths are made absolute.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatasetDir = getEnv("DATASET_DIR", cfg.DatasetDir)
	cfg.TagDatabase = getEnv("TAG_DATABASE", cfg.TagDatabase)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ThumbnailCacheMB = getEnvInt("THUMBNAIL_CACHE_MB", cfg.ThumbnailCacheMB)
	cfg.ThumbnailSize = getEnvInt("THUMBNAIL_SIZE", cfg.ThumbnailSize)
	cfg.ThumbnailWorkers = getEnvInt("THUMBNAIL_WORKERS", cfg.ThumbnailWorkers)
	cfg.ScanWorkers = getEnvInt("SCAN_WORKERS", cfg.ScanWorkers)
	cfg.ScanQueue = getEnvInt("SCAN_QUEUE", cfg.ScanQueue)
	cfg.Dedupe = getEnv("DEDUPE", cfg.Dedupe)
	cfg.Store = getEnv("STORE", cfg.Store)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.BackupDir = getEnv("BACKUP_DIR", cfg.BackupDir)
	cfg.BackupKeep = getEnvInt("BACKUP_KEEP", cfg.BackupKeep)
	cfg.AutosaveCron = getEnvAllowEmpty("AUTOSAVE_CRON", cfg.AutosaveCron)
	cfg.BackupCron = getEnvAllowEmpty("BACKUP_CRON", cfg.BackupCron)
	cfg.Watch = getEnvBool("WATCH", cfg.Watch)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", cfg.LogHealthChecks)
}

func (c *Config) finalize() error {
	if c.DatasetDir == "" {
		return errors.New("dataset_dir is required")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.ThumbnailCacheMB <= 0 {
		return fmt.Errorf("thumbnail_cache_mb must be positive, got %d", c.ThumbnailCacheMB)
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize)
	}
	if _, err := hasher.New(c.DedupeMode()); err != nil {
		return err
	}
	if c.BackupKeep < 0 {
		return fmt.Errorf("backup_keep must not be negative, got %d", c.BackupKeep)
	}

	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case StoreSidecar, StoreNone:
	case StoreSQLite:
		if c.DatabasePath == "" {
			c.DatabasePath = filepath.Join(c.DatasetDir, ".dataset-tagger.db")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreSidecar, StoreSQLite, StoreNone)
	}
	if c.BackupCron != "" && c.BackupDir == "" {
		return errors.New("backup_cron requires backup_dir")
	}

	var err error
	for _, p := range []*string{&c.DatasetDir, &c.TagDatabase, &c.DatabasePath, &c.BackupDir} {
		if *p == "" {
			continue
		}
		if *p, err = filepath.Abs(*p); err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable clear the value
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

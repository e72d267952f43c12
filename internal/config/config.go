// Package config loads runtime configuration for the parts-catalog sync
// tooling. Everything is optional: credentials and tuning knobs come from
// JLCPCB_* environment variables, an optional config file can pin paths and
// overrides, and anything left unset falls back to hardware-derived defaults
// downstream.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved configuration. Zero values mean "use the
// hardware-adaptive default" for the tuning fields and "not configured" for
// the credential triplet.
type Config struct {
	// DataDir holds the parts database and the archive cache directory.
	DataDir string `mapstructure:"data_dir"`
	// CacheDir holds downloaded archive parts and the cache manifest.
	// Defaults to <DataDir>/archive_cache.
	CacheDir string `mapstructure:"cache_dir"`
	// DBPath is the parts database file. Defaults to <DataDir>/parts.db.
	DBPath string `mapstructure:"db_path"`
	// SnapshotBaseURL overrides the public snapshot archive location.
	SnapshotBaseURL string `mapstructure:"snapshot_base_url"`
	// LogFile, when set, routes the sync job log to a rotating file.
	LogFile string `mapstructure:"log_file"`

	// Vendor API credential triplet.
	AppID     string `mapstructure:"app_id"`
	AccessKey string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"api_secret"`

	// Import tuning overrides (0 = hardware-adaptive default).
	ImportBatchSize int   `mapstructure:"import_batch_size"`
	ImportThreads   int   `mapstructure:"import_threads"`
	ImportCacheKB   int   `mapstructure:"import_cache_kb"`
	ImportMmapBytes int64 `mapstructure:"import_mmap_bytes"`
	ExtractThreads  int   `mapstructure:"extract_threads"`
}

// Load resolves configuration from the optional config file and the
// environment. Env keys use the JLCPCB_ prefix the vendor tooling already
// documents (JLCPCB_APP_ID, JLCPCB_API_KEY, JLCPCB_API_SECRET,
// JLCPCB_IMPORT_BATCH_SIZE, JLCPCB_IMPORT_THREADS, JLCPCB_IMPORT_CACHE_KB,
// JLCPCB_IMPORT_MMAP_BYTES, JLCPCB_EXTRACT_THREADS, ...).
//
// cfgFile may be empty; unknown keys in the file are ignored.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JLCPCB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env-bound keys that are known to viper, so every
	// field needs a default.
	v.SetDefault("app_id", "")
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("cache_dir", "")
	v.SetDefault("db_path", "")
	v.SetDefault("snapshot_base_url", "")
	v.SetDefault("log_file", "")
	v.SetDefault("import_batch_size", 0)
	v.SetDefault("import_threads", 0)
	v.SetDefault("import_cache_kb", 0)
	v.SetDefault("import_mmap_bytes", 0)
	v.SetDefault("extract_threads", 0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "parts.db")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "archive_cache")
	}

	return &cfg, nil
}

// HasCredentials reports whether the full vendor API triplet is configured.
func (c *Config) HasCredentials() bool {
	return c.AppID != "" && c.AccessKey != "" && c.SecretKey != ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".partsync")
}

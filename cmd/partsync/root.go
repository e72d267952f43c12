package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"partsync/internal/config"
	"partsync/internal/partsdb"
)

var (
	flagConfigFile string
	flagDBPath     string
	flagCacheDir   string
)

var rootCmd = &cobra.Command{
	Use:   "partsync",
	Short: "Local JLCPCB parts-catalog mirror and search",
	Long: `partsync maintains a local mirror of the JLCPCB parts catalog and
searches it offline.

The catalog syncs from one of two sources:
  official  the signed JLCPCB vendor API (requires JLCPCB_APP_ID,
            JLCPCB_API_KEY and JLCPCB_API_SECRET)
  public    the community snapshot archive (no credentials, ~950 MB
            initial download, incremental afterwards)

Once synced, 'search', 'part' and 'alternatives' query the local database
without touching the network.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: environment only)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "parts database path (default: <data-dir>/parts.db)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "archive cache directory (default: <data-dir>/archive_cache)")
}

// loadConfig resolves configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return nil, err
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	return cfg, nil
}

// openCatalog opens the parts database and ensures its schema exists.
func openCatalog(ctx context.Context, cfg *config.Config) (*partsdb.DB, error) {
	db, err := partsdb.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// jobLogger builds the sync job logger: a rotating file when configured,
// stderr otherwise.
func jobLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}
	}
	return log.New(w, "[partsync] ", log.LstdFlags)
}

func formatBytes(n int64) string {
	switch {
	case n > 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

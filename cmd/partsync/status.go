package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"partsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local catalog status",
	Long: `Display the state of the local parts database.

Shows:
  - Database location and size
  - Part counts by library tier
  - The incremental-import watermark`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Catalog not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'partsync update' to download the parts catalog\n\n")
			return nil
		}
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(ctx)
		if err != nil {
			return err
		}
		watermark, err := db.Watermark(ctx)
		if err != nil {
			return err
		}
		snapshotTotal, err := db.SnapshotTotalParts(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Parts Catalog Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", stats.DBPath)
		fmt.Printf("Size: %s\n", formatBytes(stats.DBSizeBytes))
		fmt.Printf("Parts: %d\n", stats.TotalParts)
		fmt.Printf("  Basic: %d\n", stats.BasicParts)
		fmt.Printf("  Preferred: %d\n", stats.PreferredParts)
		fmt.Printf("  Extended: %d\n", stats.ExtendedParts)
		fmt.Printf("In stock: %d\n", stats.InStock)
		if snapshotTotal > 0 {
			fmt.Printf("Last snapshot import: %d parts\n", snapshotTotal)
		}
		if watermark > 0 {
			fmt.Printf("Watermark: %s\n", time.Unix(watermark, 0).Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

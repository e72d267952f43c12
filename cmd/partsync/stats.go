package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print catalog statistics as JSON",
	Long: `Print catalog statistics in machine-readable JSON.

For a human-readable view use 'partsync status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
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

		out := struct {
			TotalParts     int64  `json:"totalParts"`
			BasicParts     int64  `json:"basicParts"`
			PreferredParts int64  `json:"preferredParts"`
			ExtendedParts  int64  `json:"extendedParts"`
			InStock        int64  `json:"inStock"`
			DBPath         string `json:"dbPath"`
			DBSizeBytes    int64  `json:"dbSizeBytes"`
			Watermark      int64  `json:"watermark"`
		}{
			TotalParts:     stats.TotalParts,
			BasicParts:     stats.BasicParts,
			PreferredParts: stats.PreferredParts,
			ExtendedParts:  stats.ExtendedParts,
			InStock:        stats.InStock,
			DBPath:         stats.DBPath,
			DBSizeBytes:    stats.DBSizeBytes,
			Watermark:      watermark,
		}

		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

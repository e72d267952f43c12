package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"partsync/internal/snapshot"
	"partsync/internal/ui"
)

var flagNoRemoteCheck bool

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the public snapshot download",
	Long: `Estimate the size and duration of a public snapshot sync.

By default the remote archive is probed so already-cached parts are
subtracted from the download. --no-remote-check answers from the local
cache manifest alone, without any network traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := []snapshot.Option{}
		if cfg.SnapshotBaseURL != "" {
			opts = append(opts, snapshot.WithBaseURL(cfg.SnapshotBaseURL))
		}
		client := snapshot.NewClient(opts...)

		est, err := client.EstimateUpdate(cmd.Context(), cfg.CacheDir, !flagNoRemoteCheck)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Public Snapshot Estimate\n\n", ui.RenderAccent("📦"))
		printEstimate(est)
		fmt.Println()
		return nil
	},
}

func printEstimate(est *snapshot.Estimate) {
	if est.InitialDownload {
		fmt.Printf("Initial download: %.1f MB in %d archive parts\n",
			est.DownloadSizeMB, len(est.ArchiveParts))
	} else {
		fmt.Printf("Update download: %.1f MB (full archive %.1f MB)\n",
			est.UpdateDownloadMB, est.DownloadSizeMB)
		if est.ChangedParts != nil {
			fmt.Printf("Archive parts: %d changed, %d reused\n",
				*est.ChangedParts, est.ReusedParts)
		}
	}
	fmt.Printf("Estimated database size: %.1f MB\n", est.EstimatedDatabaseSizeMB)
	fmt.Printf("Estimated parts: %d-%d (%d in stock, ~%d basic)\n",
		est.PartCountMin, est.PartCountMax, est.InStockParts, est.BasicParts)

	minMin, minMax := est.DownloadMinutesMin, est.DownloadMinutesMax
	if !est.InitialDownload {
		minMin, minMax = est.UpdateMinutesMin, est.UpdateMinutesMax
	}
	fmt.Printf("Estimated time: %.1f-%.1f minutes (100-20 Mbps)\n", minMin, minMax)
}

func init() {
	estimateCmd.Flags().BoolVar(&flagNoRemoteCheck, "no-remote-check", false, "answer from the local cache manifest only")
	rootCmd.AddCommand(estimateCmd)
}

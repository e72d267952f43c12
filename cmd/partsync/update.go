package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"partsync/internal/config"
	"partsync/internal/partsdb"
	"partsync/internal/snapshot"
	"partsync/internal/syncjob"
	"partsync/internal/ui"
	"partsync/internal/vendorapi"
)

var (
	flagSource     string
	flagForce      bool
	flagConfirm    bool
	flagBackground bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Sync the local catalog from JLCPCB",
	Long: `Download the parts catalog and import it into the local database.

With --source public the community snapshot archive is used: archive parts
already cached from a previous run are reused, and after the first full
import only rows newer than the stored watermark are touched.

With --source official the catalog is paged from the signed vendor API,
which requires the JLCPCB_APP_ID/JLCPCB_API_KEY/JLCPCB_API_SECRET triplet.

A populated catalog is never replaced without --force, and the public
snapshot download is never started without --confirm.`,
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

		mgr := newManager(cfg, db)

		res, err := mgr.Start(ctx, syncjob.StartOptions{
			Source:  flagSource,
			Force:   flagForce,
			Confirm: flagConfirm,
		})
		if errors.Is(err, vendorapi.ErrCredentialsNotConfigured) {
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), err)
			fmt.Printf("   Use --source public for the credential-free snapshot\n")
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		switch {
		case res.RequiresSourceSelection:
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), res.Message)
			fmt.Printf("   --source official   signed vendor API (needs credentials)\n")
			fmt.Printf("   --source public     community snapshot archive\n")
			return nil

		case res.RequiresReplaceConfirmation:
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), res.Message)
			return nil

		case res.RequiresDownloadConfirmation:
			est := res.Estimate
			fmt.Printf("%s Public snapshot download pending confirmation\n\n", ui.RenderAccent("📦"))
			if est != nil {
				printEstimate(est)
			}
			fmt.Printf("\nRe-run with --confirm to start the download\n")
			return nil
		}

		// Job is running in the background goroutine. Ctrl+C cancels at the
		// next archive-part or import-batch boundary.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			fmt.Printf("\n%s Cancelling sync...\n", ui.RenderWarn("⚠"))
			mgr.Cancel()
		}()

		if flagBackground {
			fmt.Printf("%s %s\n", ui.RenderAccent("🔄"), res.Message)
			mgr.Wait()
		} else {
			watchJob(mgr)
		}

		st := mgr.Status()
		if st.Stage == syncjob.StageFailed {
			fmt.Printf("%s Sync failed: %s\n", ui.RenderErr("✗"), st.Error)
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %.1fs\n", ui.RenderPass("✓"), st.ElapsedSeconds)
		if last := st.LastSuccess; last != nil {
			fmt.Printf("   Source: %s\n", last.Source)
			fmt.Printf("   Parts: %d (%d basic, %d preferred, %d extended)\n",
				last.TotalParts, last.BasicParts, last.PreferredParts, last.ExtendedParts)
			fmt.Printf("   In stock: %d\n", last.InStock)
			fmt.Printf("   Database: %s\n", last.DBPath)
		}
		return nil
	},
}

// newManager wires the sync manager from resolved configuration.
func newManager(cfg *config.Config, db *partsdb.DB) *syncjob.Manager {
	logger := jobLogger(cfg)

	snapOpts := []snapshot.Option{snapshot.WithLogger(logger)}
	if cfg.SnapshotBaseURL != "" {
		snapOpts = append(snapOpts, snapshot.WithBaseURL(cfg.SnapshotBaseURL))
	}
	if cfg.ExtractThreads > 0 {
		snapOpts = append(snapOpts, snapshot.WithExtractThreads(cfg.ExtractThreads))
	}

	return syncjob.NewManager(syncjob.Config{
		DB:       db,
		Snapshot: snapshot.NewClient(snapOpts...),
		Vendor:   vendorapi.NewClient(cfg.AppID, cfg.AccessKey, cfg.SecretKey, logger),
		CacheDir: cfg.CacheDir,
		Tuning: partsdb.TuningOverrides{
			BatchSize: cfg.ImportBatchSize,
			Threads:   cfg.ImportThreads,
			CacheKB:   cfg.ImportCacheKB,
			MmapBytes: cfg.ImportMmapBytes,
		},
		Logger: logger,
	})
}

// watchJob polls the running job and prints progress lines until it ends.
func watchJob(mgr *syncjob.Manager) {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastLine string
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			st := mgr.Status()
			line := progressLine(st)
			if line != "" && line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
		}
	}
}

func progressLine(st syncjob.Status) string {
	switch st.Stage {
	case syncjob.StageDownloading:
		if st.TotalBytes > 0 {
			return fmt.Sprintf("   Downloading: %s / %s",
				formatBytes(st.DownloadedBytes), formatBytes(st.TotalBytes))
		}
		if st.DownloadedParts > 0 {
			return fmt.Sprintf("   Downloading: %d parts", st.DownloadedParts)
		}
		return "   Downloading..."
	case syncjob.StageImporting:
		if st.TotalParts > 0 {
			return fmt.Sprintf("   Importing: %d / %d parts", st.ImportedParts, st.TotalParts)
		}
		return "   Importing..."
	default:
		return ""
	}
}

func init() {
	updateCmd.Flags().StringVar(&flagSource, "source", syncjob.SourceAuto, "catalog source: official, public or auto")
	updateCmd.Flags().BoolVar(&flagForce, "force", false, "replace an existing populated catalog")
	updateCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "accept the public snapshot download size")
	updateCmd.Flags().BoolVar(&flagBackground, "background", false, "run without progress output")
	rootCmd.AddCommand(updateCmd)
}

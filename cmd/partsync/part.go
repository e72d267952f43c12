package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"partsync/internal/catalog"
	"partsync/internal/ui"
)

var partCmd = &cobra.Command{
	Use:   "part <lcsc>",
	Short: "Show one catalog part",
	Long: `Display a single part by its LCSC identifier.

The identifier is normalized: 'c1002', '1002' and 'C1002' all resolve to
the same part.`,
	Args: cobra.ExactArgs(1),
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

		part, err := db.GetPart(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Printf("%s Part %s not found\n", ui.RenderWarn("⚠"), args[0])
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		printPart(part)
		return nil
	},
}

func printPart(p *catalog.Part) {
	fmt.Printf("\n%s %s\n\n", ui.RenderAccent(p.LCSCID), p.Description)
	fmt.Printf("Manufacturer: %s\n", p.Manufacturer)
	fmt.Printf("Part number: %s\n", p.MfrPart)
	fmt.Printf("Category: %s / %s\n", p.Category, p.Subcategory)
	fmt.Printf("Package: %s\n", p.Package)
	fmt.Printf("Solder joints: %d\n", p.SolderJoints)
	fmt.Printf("Library: %s\n", p.LibraryType)
	fmt.Printf("Stock: %d\n", p.Stock)
	if len(p.PriceBreaks) > 0 {
		fmt.Printf("Prices:\n")
		for _, pb := range p.PriceBreaks {
			fmt.Printf("  %6d+  $%.4f\n", pb.Qty, pb.Price)
		}
	}
	if p.Datasheet != "" {
		fmt.Printf("Datasheet: %s\n", p.Datasheet)
	}
	if p.LastUpdated > 0 {
		fmt.Printf("Updated: %s\n", time.Unix(p.LastUpdated, 0).Format("2006-01-02"))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(partCmd)
}

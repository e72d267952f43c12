package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"partsync/internal/ui"
)

var flagAltLimit int

var alternativesCmd = &cobra.Command{
	Use:   "alternatives <lcsc>",
	Short: "Suggest substitute parts",
	Long: `Suggest substitutes for a part: same subcategory, same package.

Candidates rank by library tier (Basic first, for the lower assembly
cost), then by lowest unit price, then by stock.`,
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

		ref, alts, err := db.SuggestAlternatives(ctx, args[0], flagAltLimit)
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Printf("%s Part %s not found\n", ui.RenderWarn("⚠"), args[0])
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		fmt.Printf("\nAlternatives for %s (%s, %s):\n\n",
			ui.RenderAccent(ref.LCSCID), ref.Subcategory, ref.Package)

		if len(alts) == 0 {
			fmt.Printf("%s No substitutes in the same subcategory and package\n", ui.RenderWarn("⚠"))
			return nil
		}

		fmt.Printf("%-10s %-10s %8s %10s  %-20s %s\n",
			"LCSC", "TIER", "STOCK", "PRICE", "MFR PART", "MANUFACTURER")
		for _, p := range alts {
			price := "-"
			if len(p.PriceBreaks) > 0 {
				price = fmt.Sprintf("$%.4f", p.LowestPrice(0))
			}
			fmt.Printf("%-10s %-10s %8d %10s  %-20s %s\n",
				p.LCSCID, p.LibraryType, p.Stock, price, p.MfrPart, p.Manufacturer)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	alternativesCmd.Flags().IntVar(&flagAltLimit, "limit", 10, "maximum suggestions")
	rootCmd.AddCommand(alternativesCmd)
}

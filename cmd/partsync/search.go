package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"partsync/internal/partsdb"
	"partsync/internal/ui"
)

var (
	flagCategory     string
	flagSubcategory  string
	flagPackage      string
	flagManufacturer string
	flagTier         string
	flagInStock      bool
	flagLimit        int
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search the local parts catalog",
	Long: `Full-text search over the local catalog.

The query matches LCSC id, description, manufacturer part number and
manufacturer name. Filters narrow the result set; with no library-type
filter, results rank Basic parts first (no assembly setup fee), then
Preferred, then Extended, with higher stock breaking ties.

Examples:
  partsync search 10k resistor --package 0402 --in-stock
  partsync search --manufacturer yageo --tier Basic
  partsync search STM32G030 --limit 5`,
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

		parts, err := db.SearchParts(ctx, partsdb.SearchOptions{
			Query:        strings.Join(args, " "),
			Category:     flagCategory,
			Subcategory:  flagSubcategory,
			Package:      flagPackage,
			Manufacturer: flagManufacturer,
			LibraryType:  flagTier,
			InStockOnly:  flagInStock,
			Limit:        flagLimit,
		})
		if err != nil {
			return err
		}

		if len(parts) == 0 {
			fmt.Printf("%s No parts matched\n", ui.RenderWarn("⚠"))
			return nil
		}

		fmt.Printf("%-10s %-10s %8s  %-20s %-10s %s\n",
			"LCSC", "TIER", "STOCK", "MFR PART", "PACKAGE", "DESCRIPTION")
		for _, p := range parts {
			desc := p.Description
			if len(desc) > 50 {
				desc = desc[:47] + "..."
			}
			fmt.Printf("%-10s %-10s %8d  %-20s %-10s %s\n",
				p.LCSCID, p.LibraryType, p.Stock, p.MfrPart, p.Package, desc)
		}
		fmt.Printf("\n%d parts\n", len(parts))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&flagCategory, "category", "", "filter by category (substring)")
	searchCmd.Flags().StringVar(&flagSubcategory, "subcategory", "", "filter by subcategory (substring)")
	searchCmd.Flags().StringVar(&flagPackage, "package", "", "filter by package (substring)")
	searchCmd.Flags().StringVar(&flagManufacturer, "manufacturer", "", "filter by manufacturer (substring)")
	searchCmd.Flags().StringVar(&flagTier, "tier", "", "filter by library tier: Basic, Preferred or Extended")
	searchCmd.Flags().BoolVar(&flagInStock, "in-stock", false, "only parts with stock")
	searchCmd.Flags().IntVar(&flagLimit, "limit", partsdb.DefaultSearchLimit, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

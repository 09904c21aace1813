package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/affiliate/catalog"
)

func newCatalogCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect product catalogs",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load a catalog file and list its products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = g.catalogFile
			}
			var (
				cat *catalog.Catalog
				err error
			)
			if path == "" {
				cat = catalog.Default()
				path = "built-in catalog"
			} else if cat, err = catalog.LoadFile(path); err != nil {
				return err
			}
			printCatalog(cmd, path, cat)
			return nil
		},
	}
	validate.Flags().StringVar(&file, "file", "", "catalog YAML; defaults to --catalog")

	cmd.AddCommand(validate)
	return cmd
}

func printCatalog(cmd *cobra.Command, source string, cat *catalog.Catalog) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d products ok\n", source, len(cat.All()))
	for _, p := range cat.All() {
		kind := "one-time"
		if p.Recurring {
			kind = fmt.Sprintf("every %d days", p.RebillDays)
		}
		fmt.Fprintf(w, "  %-18s %10s  %-14s", p.Slug, p.Price.FormatMajor(), kind)
		if len(p.ProviderIDs) > 0 {
			fmt.Fprintf(w, "  ids=%s", strings.Join(p.ProviderIDs, ","))
		}
		if p.IsLevel() {
			fmt.Fprintf(w, "  level=%q rank=%d", p.Level, p.Rank)
		}
		fmt.Fprintln(w)
	}
}

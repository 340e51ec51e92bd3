// Команда catalogcheck проверяет директорию каталога контента и выводит сводку.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"keepsake-server/internal/catalog"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:           "catalogcheck",
		Short:         "Validate and inspect a keepsake content catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Catalog directory (empty uses the embedded catalog)")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the catalog and report every problem found",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load(dir)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cat)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "items",
		Short: "List items in shelf order with their unlock rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load(dir)
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), cat)
		},
	})

	return cmd
}

func load(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

func printSummary(w io.Writer, cat *catalog.Catalog) {
	fmt.Fprintf(w, "catalog OK: %d items (%d reserved), %d clues, %d discovery rules, %d hotspots, %d riddles\n",
		len(cat.Items()), len(cat.ReservedIDs()), len(cat.Clues()), len(cat.Rules()),
		len(cat.Hotspots()), len(cat.Riddles()))
}

func printItems(w io.Writer, cat *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLOT\tUNLOCK")
	for _, it := range cat.Items() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.SlotID, describeUnlock(it))
	}
	return tw.Flush()
}

func describeUnlock(it catalog.Item) string {
	if it.Reserved {
		return "reserved"
	}
	switch r := it.Unlock.(type) {
	case catalog.StarsTotalAtLeast:
		return fmt.Sprintf("lifetime stars >= %d", r.Total)
	case catalog.TokensAtLeast:
		return fmt.Sprintf("%s tokens >= %d", r.Token, r.Total)
	case catalog.RiddlesSolvedAtLeast:
		return fmt.Sprintf("riddles solved >= %d", r.Total)
	case catalog.CraftsCompletedAtLeast:
		return fmt.Sprintf("crafts completed >= %d (not tracked)", r.Total)
	case catalog.DaysOpenedAtLeast:
		return fmt.Sprintf("days opened >= %d", r.Total)
	case catalog.DiscoveryUnlock:
		return "discovery " + r.DiscoveryID
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", r)
	}
}

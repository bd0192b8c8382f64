package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ceol/tunebook-go/internal/tunedata"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search tunes by name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	var tunes []*tunedata.Tune
	if cataloguePath != "" {
		f, err := os.Open(cataloguePath)
		if err != nil {
			return fmt.Errorf("open catalogue: %w", err)
		}
		defer f.Close()
		cat, err := tunedata.LoadCatalogue(f)
		if err != nil {
			return err
		}
		tunes = cat.Search(query)
	} else {
		var err error
		tunes, err = tunedata.NewClient(sessionBase, nil).Search(cmd.Context(), query)
		if err != nil {
			return err
		}
	}

	if len(tunes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tunes found")
		return nil
	}
	for _, t := range tunes {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-40s %s\n", t.ID, t.Name, t.Type)
	}
	return nil
}

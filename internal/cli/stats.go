package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local storage statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}

	output(cmd.OutOrStdout(), stats, func(w io.Writer) {
		fmt.Fprintf(w, "Database:  %s (%d bytes)\n", stats.DBPath, stats.DBSizeBytes)
		fmt.Fprintf(w, "Logged in: %v\n", stats.LoggedIn)
		fmt.Fprintf(w, "Messages:  %d\n", stats.TotalMessages)
		for _, p := range stats.Products {
			fmt.Fprintf(w, "  product %s: %d\n", p.ProductID, p.Messages)
		}
	})
}

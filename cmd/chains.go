package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pwfit/internal/presentation"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Enumerate the decay chains and their admissible waves",
	Long: `Build the decay topology from the config and list every surviving
chain with its admissible (l, s) couplings and parameter names. No sample
files are read.`,
	RunE: runChains,
}

func init() {
	chainsCmd.Flags().Bool("json", false, "print chains as JSON")
	rootCmd.AddCommand(chainsCmd)
}

func runChains(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := buildSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.shutdown(ctx)

	formatter := presentation.NewFormatter(os.Stdout)
	dtos := presentation.FromChains(s.chains)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return formatter.FormatJSON(dtos)
	}
	return formatter.FormatChains(dtos)
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pwfit/internal/infrastructure/sqlite"
	"github.com/zjrosen/pwfit/internal/presentation"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect recorded fit results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded fit results, newest first",
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one fit result with its full parameter set",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsShow,
}

func init() {
	resultsCmd.PersistentFlags().String("db", "pwfit.db", "results database path")
	resultsListCmd.Flags().Int("limit", 20, "maximum results to list")
	resultsListCmd.Flags().Bool("json", false, "print results as JSON")
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	rootCmd.AddCommand(resultsCmd)
}

func openResultsDB(cmd *cobra.Command) (*sqlite.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	return sqlite.Open(dbPath)
}

func runResultsList(cmd *cobra.Command, _ []string) error {
	db, err := openResultsDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	results, err := db.Results().List(limit)
	if err != nil {
		return err
	}
	formatter := presentation.NewFormatter(os.Stdout)
	dtos := presentation.FromResults(results)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return formatter.FormatJSON(dtos)
	}
	// The table omits the parameter sets; show prints them.
	for i := range dtos {
		dtos[i].Params = nil
		dtos[i].Fractions = nil
	}
	return formatter.FormatResults(dtos)
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	db, err := openResultsDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Results().FindByID(args[0])
	if err != nil {
		return err
	}
	return presentation.NewFormatter(os.Stdout).FormatJSON(presentation.FromResult(result))
}

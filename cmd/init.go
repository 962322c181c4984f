package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pwfit/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter fit description",
	Long:  `Write an editable three-body example config to the --config path.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.WriteSampleConfig(cfgFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", cfgFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

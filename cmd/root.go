// Package cmd wires the pwfit CLI: fit, chains, validate, export, results,
// and init subcommands over the shared fit pipeline.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/pwfit/internal/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile  string
	logClose func()
)

var rootCmd = &cobra.Command{
	Use:   "pwfit",
	Short: "Partial-wave amplitude fits over decay chains",
	Long: `pwfit turns a declarative decay description into a coherent per-event
amplitude model and fits its couplings to weighted event samples with an
MC-normalized likelihood.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml",
		"fit description file")
	rootCmd.PersistentFlags().Bool("debug", false,
		"enable debug logging (also PWFIT_DEBUG=1)")
	rootCmd.PersistentFlags().String("log-file", "",
		"debug log file (default: pwfit.log next to the config)")
	rootCmd.PersistentFlags().Bool("no-cache", false,
		"bypass the kinematics cache")
	rootCmd.PersistentFlags().String("trace", "",
		"trace exporter: file, stdout, or otlp")
	rootCmd.PersistentFlags().String("trace-file", "traces.jsonl",
		"trace output file for the file exporter")

	viper.SetEnvPrefix("PWFIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("no-cache", rootCmd.PersistentFlags().Lookup("no-cache"))
	_ = viper.BindPFlag("trace", rootCmd.PersistentFlags().Lookup("trace"))
	_ = viper.BindPFlag("trace-file", rootCmd.PersistentFlags().Lookup("trace-file"))
}

// initLogging opens the debug log and gates it on --debug / PWFIT_DEBUG.
func initLogging() {
	path := viper.GetString("log-file")
	if path == "" {
		path = filepath.Join(filepath.Dir(cfgFile), "pwfit.log")
	}
	cleanup, err := log.Init(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", path, err)
		return
	}
	logClose = cleanup
	log.SetEnabled(viper.GetBool("debug"))
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if logClose != nil {
			logClose()
		}
	}()
	return rootCmd.Execute()
}

// SetVersion sets the build metadata (called from main with ldflags).
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", v, c, d)
}

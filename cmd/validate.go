package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/watcher"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the fit description",
	Long: `Parse the config, resolve every particle reference, build the decay
chains, and apply the constraints, reporting the first error found. With
--watch the file is revalidated on every save until interrupted.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("watch", false, "revalidate on config changes")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return validateOnce(cmd)
	}

	w, err := watcher.New(watcher.DefaultConfig(cfgFile))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.ErrorErr(log.CatConfig, "stopping watcher failed", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	reportValidation(cmd)
	for {
		select {
		case <-changes:
			fmt.Println("---")
			reportValidation(cmd)
		case <-sigs:
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}

func validateOnce(cmd *cobra.Command) error {
	s, err := buildSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.shutdown(cmd.Context())
	fmt.Printf("%s: ok (%d particles, %d chains, %d free parameters)\n",
		cfgFile, s.reg.Len(), len(s.chains), s.vec.NFree())
	return nil
}

// reportValidation prints instead of failing, so a broken intermediate save
// does not end the watch loop.
func reportValidation(cmd *cobra.Command) {
	if err := validateOnce(cmd); err != nil {
		fmt.Printf("%s: %v\n", cfgFile, err)
	}
}

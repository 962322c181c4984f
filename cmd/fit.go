package cmd

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/zjrosen/pwfit/internal/infrastructure/sqlite"
	"github.com/zjrosen/pwfit/internal/likelihood"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/presentation"
	"github.com/zjrosen/pwfit/internal/pubsub"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit the amplitude model to the declared samples",
	Long: `Load the samples, build the decay chains, and minimize the negative
log-likelihood over the free couplings with a quasi-Newton optimizer.
The result is printed, written to the parameter file, and recorded in the
results database.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().Int("max-iter", 200, "maximum major iterations")
	fitCmd.Flags().Int("workers", 0, "evaluation workers (0: GOMAXPROCS)")
	fitCmd.Flags().String("load", "", "initial parameter file (JSON)")
	fitCmd.Flags().String("out", "final_params.json", "fitted parameter file")
	fitCmd.Flags().String("db", "pwfit.db", "results database path")
	fitCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := buildSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.shutdown(ctx)

	if load, _ := cmd.Flags().GetString("load"); load != "" {
		if err := s.vec.LoadJSON(load); err != nil {
			return fmt.Errorf("loading parameters: %w", err)
		}
	}

	workers, _ := cmd.Flags().GetInt("workers")
	engine, err := s.engine(workers)
	if err != nil {
		return err
	}

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go printProgress(progressCtx, engine)

	x0 := s.vec.FreeValues()
	if len(x0) == 0 {
		return fmt.Errorf("fit: no free parameters; loosen the constraints")
	}
	log.Info(log.CatFit, "starting minimization", "free", len(x0))

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			nll, err := engine.NLL(ctx, x)
			if err != nil {
				log.ErrorErr(log.CatFit, "likelihood evaluation rejected", err)
				return math.Inf(1)
			}
			return nll
		},
		Grad: func(grad, x []float64) {
			engine.Grad(ctx, grad, x)
		},
	}
	maxIter, _ := cmd.Flags().GetInt("max-iter")
	settings := &optimize.Settings{MajorIterations: maxIter}

	result, optErr := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if result == nil {
		return fmt.Errorf("minimization failed: %w", optErr)
	}
	converged := optErr == nil && result.Status != optimize.Failure
	cancelProgress()

	if err := s.vec.SetFreeValues(result.X); err != nil {
		return err
	}
	nll, err := engine.NLL(ctx, nil)
	if err != nil {
		return fmt.Errorf("final evaluation: %w", err)
	}
	fractions, err := engine.FitFractions(ctx)
	if err != nil {
		log.ErrorErr(log.CatFit, "fit fractions failed", err)
		fractions = nil
	}

	out, _ := cmd.Flags().GetString("out")
	if err := s.vec.SaveJSON(out); err != nil {
		return fmt.Errorf("saving parameters: %w", err)
	}

	record := &sqlite.FitResult{
		ConfigPath: s.cfg.Path,
		NLL:        nll,
		NFree:      len(x0),
		Converged:  converged,
		Params:     s.vec.Snapshot(),
		Fractions:  fractions,
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if db, err := sqlite.Open(dbPath); err != nil {
		log.ErrorErr(log.CatDB, "results database unavailable", err)
	} else {
		defer db.Close()
		if err := db.Results().Save(record); err != nil {
			log.ErrorErr(log.CatDB, "recording fit result failed", err)
		}
	}

	formatter := presentation.NewFormatter(os.Stdout)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return formatter.FormatJSON(presentation.FromResult(record))
	}
	fmt.Printf("nll = %.6f  (free parameters: %d, converged: %v)\n", nll, len(x0), converged)
	for ci, chain := range s.chains {
		line := fmt.Sprintf("chain [%d] %s", ci, chain.Name())
		if fractions != nil {
			line += fmt.Sprintf("  fraction %.4f", fractions[ci])
		}
		fmt.Println(line)
	}
	fmt.Printf("parameters written to %s\n", out)
	if optErr != nil {
		return fmt.Errorf("minimization did not converge: %w", optErr)
	}
	return nil
}

// printProgress streams periodic NLL values to stderr while the optimizer
// runs.
func printProgress(ctx context.Context, engine *likelihood.Engine) {
	listener := pubsub.NewContinuousListener(ctx, engine.Progress())
	for {
		event, ok := listener.Next()
		if !ok {
			return
		}
		if event.Payload.Eval%10 == 0 {
			fmt.Fprintf(os.Stderr, "eval %d  nll %.6f\n", event.Payload.Eval, event.Payload.NLL)
		}
	}
}

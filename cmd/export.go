package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pwfit/internal/likelihood"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/presentation"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-event kinematics and densities",
	Long: `Write per-event invariant masses, helicity angles, and (when a
parameter file is given) the predicted density of one sample as JSON lines,
for an external plotting layer.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("sample", "data", "sample role to export")
	exportCmd.Flags().String("load", "", "parameter file for density values")
	exportCmd.Flags().String("out", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := buildSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.shutdown(ctx)

	roleName, _ := cmd.Flags().GetString("sample")
	sample, err := findSample(s, roleName)
	if err != nil {
		return err
	}

	var densities []float64
	if load, _ := cmd.Flags().GetString("load"); load != "" {
		if err := s.vec.LoadJSON(load); err != nil {
			return fmt.Errorf("loading parameters: %w", err)
		}
		engine, err := s.engine(0)
		if err != nil {
			return err
		}
		densities, err = engine.Densities(ctx, sample)
		if err != nil {
			return err
		}
	}

	writer := os.Stdout
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out) //nolint:gosec // user-declared output path
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		writer = f
	}

	rows := make([]presentation.ExportRow, 0, len(sample.Kin))
	for i := range sample.Kin {
		row := presentation.ExportRow{
			Sample:  roleName,
			Event:   sample.SourceIndex(i),
			Masses:  make(map[string]float64),
			Alpha:   make(map[string]float64),
			CosBeta: make(map[string]float64),
		}
		for ci, chain := range s.chains {
			ck := &sample.Kin[i].Chains[ci]
			for ni, node := range chain.Nodes {
				name := node.Name()
				row.Masses[name] = ck.Nodes[ni].Mass
				row.Alpha[name] = ck.Nodes[ni].Alpha
				row.CosBeta[name] = ck.Nodes[ni].CosBeta
			}
		}
		if densities != nil {
			row.Density = densities[i]
		}
		rows = append(rows, row)
	}
	log.Info(log.CatData, "exporting sample", "role", roleName, "events", len(rows))
	return presentation.NewFormatter(writer).FormatExportRows(rows)
}

func findSample(s *session, roleName string) (*likelihood.PreparedSample, error) {
	for role, sample := range s.samples {
		if role.String() == roleName {
			return sample, nil
		}
	}
	return nil, fmt.Errorf("no %q sample declared in the config", roleName)
}

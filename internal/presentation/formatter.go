// Package presentation renders chain listings, fit results, and export rows
// for the CLI; it holds no physics.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
)

// Formatter handles output formatting.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter.
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer}
}

// FormatJSON writes any value as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatChains writes a human-readable chain listing.
func (f *Formatter) FormatChains(chains []ChainDTO) error {
	for _, c := range chains {
		if _, err := fmt.Fprintf(f.writer, "[%d] %s\n", c.Index, c.Name); err != nil {
			return err
		}
		for _, n := range c.Nodes {
			if _, err := fmt.Fprintf(f.writer, "    %s -> %s %s", n.Parent, n.Children[0], n.Children[1]); err != nil {
				return err
			}
			if n.Lineshape != "" {
				if _, err := fmt.Fprintf(f.writer, "  [%s]", n.Lineshape); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprint(f.writer, "  waves:"); err != nil {
				return err
			}
			for _, w := range n.Waves {
				if _, err := fmt.Fprintf(f.writer, " (l=%d,s=%s)", w.L, w.S); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(f.writer); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(f.writer, "    parameters: %d\n", len(c.Parameters)); err != nil {
			return err
		}
	}
	return nil
}

// FormatResults writes a compact fit-result table.
func (f *Formatter) FormatResults(results []ResultDTO) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(f.writer, "no fit results recorded")
		return err
	}
	for _, r := range results {
		status := "diverged"
		if r.Converged {
			status = "converged"
		}
		if _, err := fmt.Fprintf(f.writer, "%s  %s  nll=%.6f  free=%d  %s  %s\n",
			r.ID, r.CreatedAt, r.NLL, r.NFree, status, r.ConfigPath); err != nil {
			return err
		}
	}
	return nil
}

// FormatExportRows streams export rows as JSON lines, one event per line.
func (f *Formatter) FormatExportRows(rows []ExportRow) error {
	encoder := json.NewEncoder(f.writer)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

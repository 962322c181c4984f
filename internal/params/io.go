package params

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zjrosen/pwfit/internal/log"
)

// SaveJSON writes all parameter values keyed by name. Go's JSON encoding of
// float64 uses the shortest representation that parses back to the same
// bits, so a save/load round trip reproduces likelihood values exactly.
func (v *Vector) SaveJSON(path string) error {
	data, err := json.MarshalIndent(v.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil { //nolint:gosec // user-chosen output path
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}

// LoadJSON reads parameter values saved by SaveJSON. Values apply to fixed
// parameters as well; names unknown to this configuration are skipped with
// a warning.
func (v *Vector) LoadJSON(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen input path
	if err != nil {
		return fmt.Errorf("read parameters: %w", err)
	}
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse parameters: %w", err)
	}
	for name, val := range values {
		p, ok := v.params[name]
		if !ok {
			log.Warn(log.CatConfig, "ignoring unknown parameter from file", "name", name, "file", path)
			continue
		}
		if p.kind == kindAlias {
			continue
		}
		p.value = val
	}
	return nil
}

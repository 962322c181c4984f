package config

import (
	"fmt"
	"os"
)

// sampleConfig is a complete three-body example with one resonance per
// pairing, ready to edit.
const sampleConfig = `data:
  data: data/data.dat
  phsp: data/phsp.dat
  bg: data/bg.dat
  bg_weight: 0.731
  random_z: true
  center_mass: true
  # dat_order: [D, B, C]

decay:
  A:
    - [R_BC, D]
    - [R_BD, C]
    - [R_CD, B]
  R_BC: [B, C]
  R_BD: [B, D]
  R_CD: [C, D]

particle:
  $top:
    A: { J: 1, P: -1 }
  $finals:
    B: { J: 1, P: -1, mass: 2.00698 }
    C: { J: 1, P: -1, mass: 2.01028 }
    D: { J: 0, P: -1, mass: 0.13957 }
  R_BC: { J: 1, P: 1, mass: 4.16, width: 0.07 }
  R_BD: { J: 1, P: -1, mass: 2.43, width: 0.3 }
  R_CD: { J: 1, P: 1, mass: 2.42, width: 0.03 }

constrains:
  fix_chain_idx: 0
  fix_chain_val: 1.0
`

// WriteSampleConfig writes the example fit description to path, refusing to
// clobber an existing file.
func WriteSampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %q already exists", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644) //nolint:gosec // world-readable config
}

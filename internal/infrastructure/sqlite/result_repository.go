package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FitResult is one persisted fit outcome.
type FitResult struct {
	ID         string
	ConfigPath string
	NLL        float64
	NFree      int
	Converged  bool
	Params     map[string]float64
	Fractions  []float64
	CreatedAt  time.Time
}

// ErrResultNotFound reports a lookup for an unknown result ID.
var ErrResultNotFound = errors.New("fit result not found")

// ResultRepository stores and retrieves fit results.
type ResultRepository struct {
	db *sql.DB
}

const resultColumns = `id, config_path, nll, n_free, converged, params, fractions, created_at`

// Save persists a result, assigning a fresh UUID when ID is empty.
func (r *ResultRepository) Save(result *FitResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	paramsJSON, err := json.Marshal(result.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	fractionsJSON, err := json.Marshal(result.Fractions)
	if err != nil {
		return fmt.Errorf("encode fractions: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO fit_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.ConfigPath, result.NLL, result.NFree, result.Converged,
		string(paramsJSON), string(fractionsJSON), result.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert fit result: %w", err)
	}
	return nil
}

// List returns the most recent results, newest first.
func (r *ResultRepository) List(limit int) ([]*FitResult, error) {
	rows, err := r.db.Query(
		`SELECT `+resultColumns+` FROM fit_results ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list fit results: %w", err)
	}
	defer rows.Close()

	var out []*FitResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fit result: %w", err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// FindByID retrieves one result.
func (r *ResultRepository) FindByID(id string) (*FitResult, error) {
	row := r.db.QueryRow(`SELECT `+resultColumns+` FROM fit_results WHERE id = ?`, id)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find fit result: %w", err)
	}
	return result, nil
}

func scanResult(scanner interface{ Scan(...any) error }) (*FitResult, error) {
	var (
		result        FitResult
		paramsJSON    string
		fractionsJSON sql.NullString
		createdAt     int64
	)
	err := scanner.Scan(
		&result.ID, &result.ConfigPath, &result.NLL, &result.NFree, &result.Converged,
		&paramsJSON, &fractionsJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &result.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if fractionsJSON.Valid && fractionsJSON.String != "" {
		if err := json.Unmarshal([]byte(fractionsJSON.String), &result.Fractions); err != nil {
			return nil, fmt.Errorf("decode fractions: %w", err)
		}
	}
	result.CreatedAt = time.Unix(createdAt, 0)
	return &result, nil
}

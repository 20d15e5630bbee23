package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"jailbreak-eval/internal/domain"
)

// ResultsWriter serializes a completed ResultSet as one JSON document.
type ResultsWriter struct {
	dir string
}

// NewResultsWriter creates a writer targeting the given output directory.
func NewResultsWriter(dir string) (*ResultsWriter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("repository: output dir must not be empty")
	}
	return &ResultsWriter{dir: dir}, nil
}

// ResultsFilename encodes the primary model id and temperature for
// traceability. Slashes in the model id map to underscores so the name stays
// a single path element.
func ResultsFilename(model string, temperature float64) string {
	return fmt.Sprintf("results_%s_temp%v.json", strings.ReplaceAll(model, "/", "_"), temperature)
}

// Write persists the result set once, at run completion, and returns the
// output path.
func (w *ResultsWriter) Write(results domain.ResultSet, model string, temperature float64) (string, error) {
	if len(results) == 0 {
		return "", errors.New("repository: result set must not be empty")
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("repository: marshal results: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("repository: create output dir: %w", err)
	}
	path := filepath.Join(w.dir, ResultsFilename(model, temperature))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("repository: write results: %w", err)
	}
	return path, nil
}

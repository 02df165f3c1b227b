package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cwbudde/penreg/internal/dataset"
	"github.com/cwbudde/penreg/internal/model"
	"gonum.org/v1/gonum/mat"
)

// buildModel loads the job's data and prepends the intercept column.
func buildModel(job *Job) (*model.LeastSquares, error) {
	var (
		x   *mat.Dense
		y   []float64
		err error
	)
	if job.Config.XPath != "" {
		x, y, err = dataset.LoadXY(job.Config.XPath, job.Config.YPath)
	} else {
		x, err = dataset.FromRows(job.x)
		y = job.y
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	m, err := model.NewLeastSquares(y, dataset.WithIntercept(x))
	if err != nil {
		return nil, fmt.Errorf("failed to bind model: %w", err)
	}
	return m, nil
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

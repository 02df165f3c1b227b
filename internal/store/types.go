package store

import (
	"fmt"
	"time"
)

// RunConfig records the inputs of a fit so a stored result can be traced
// back to its data and settings.
type RunConfig struct {
	XPath        string    `json:"xPath"`
	YPath        string    `json:"yPath"`
	Engine       string    `json:"engine"`
	Penalty      string    `json:"penalty"`
	Unpenalized  []int     `json:"unpenalized,omitempty"`
	Lambdas      []float64 `json:"lambdas"`
	Thetas       []float64 `json:"thetas"`
	HessianStep  float64   `json:"hessianStep"`
	GlobalSearch bool      `json:"globalSearch,omitempty"`
}

// FitSummary is the outcome of one grid point.
type FitSummary struct {
	Lambda     float64   `json:"lambda"`
	Theta      float64   `json:"theta"`
	Params     []float64 `json:"params"`
	Loss       float64   `json:"loss"`
	Objective  float64   `json:"objective"`
	Iterations int       `json:"iterations"`
	Status     string    `json:"status"`
}

// Record is the persisted result of a run.
type Record struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	// Config holds the inputs of the run
	Config RunConfig `json:"config"`

	// Samples and Params give the shape of the fitted design matrix
	Samples int `json:"samples"`
	Params  int `json:"params"`

	// InitialLoss is the loss at the start values
	InitialLoss float64 `json:"initialLoss"`

	// Fits holds one entry per grid point, in evaluation order
	Fits []FitSummary `json:"fits"`

	// Elapsed is the wall time of the fit
	Elapsed time.Duration `json:"elapsed"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`
}

// RecordInfo contains metadata about a run without the parameter data.
type RecordInfo struct {
	RunID          string    `json:"runId"`
	Engine         string    `json:"engine"`
	Points         int       `json:"points"`
	FinalObjective float64   `json:"finalObjective"`
	Timestamp      time.Time `json:"timestamp"`
	XPath          string    `json:"xPath"`
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	info := RecordInfo{
		RunID:     r.RunID,
		Engine:    r.Config.Engine,
		Points:    len(r.Fits),
		Timestamp: r.Timestamp,
		XPath:     r.Config.XPath,
	}
	if len(r.Fits) > 0 {
		info.FinalObjective = r.Fits[len(r.Fits)-1].Objective
	}
	return info
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Config.Engine == "" {
		return &ValidationError{Field: "Config.Engine", Reason: "cannot be empty"}
	}
	if r.Params <= 0 {
		return &ValidationError{Field: "Params", Reason: "must be positive"}
	}
	if r.Samples <= 0 {
		return &ValidationError{Field: "Samples", Reason: "must be positive"}
	}
	if len(r.Fits) == 0 {
		return &ValidationError{Field: "Fits", Reason: "cannot be empty"}
	}
	for i, f := range r.Fits {
		if len(f.Params) != r.Params {
			return &ValidationError{
				Field:  fmt.Sprintf("Fits[%d].Params", i),
				Reason: fmt.Sprintf("length mismatch: expected %d, got %d", r.Params, len(f.Params)),
			}
		}
		if f.Loss < 0 {
			return &ValidationError{Field: fmt.Sprintf("Fits[%d].Loss", i), Reason: "cannot be negative"}
		}
	}
	if r.InitialLoss < 0 {
		return &ValidationError{Field: "InitialLoss", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// NewRecord creates a record stamped with the current time.
func NewRecord(runID string, config RunConfig, samples, params int, initialLoss float64, fits []FitSummary, elapsed time.Duration) *Record {
	return &Record{
		RunID:       runID,
		Config:      config,
		Samples:     samples,
		Params:      params,
		InitialLoss: initialLoss,
		Fits:        fits,
		Elapsed:     elapsed,
		Timestamp:   time.Now(),
	}
}

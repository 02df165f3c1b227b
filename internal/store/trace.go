package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one major engine iteration, stored as a line of trace.jsonl.
type TraceEntry struct {
	Lambda float64 `json:"lambda"`
	Theta  float64 `json:"theta"`

	Iteration    int     `json:"iteration"`
	Objective    float64 `json:"objective"`
	GradientNorm float64 `json:"gradientNorm"`

	Timestamp time.Time `json:"timestamp"`

	// Params are only recorded for full traces
	Params []float64 `json:"params,omitempty"`
}

// PointTrace condenses the trace entries of one grid point.
type PointTrace struct {
	Lambda            float64
	Theta             float64
	Iterations        int
	FirstObjective    float64
	FinalObjective    float64
	FinalGradientNorm float64
}

// TraceWriter appends entries to the trace of one run. Safe for concurrent use.
type TraceWriter struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	path  string
	count int
}

// NewTraceWriter opens <baseDir>/runs/<runID>/trace.jsonl, truncating it
// unless append is set.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	path := tracePath(baseDir, runID)
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write buffers one entry. It reaches disk on Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	tw.count++
	return nil
}

// Count returns the number of entries written through this writer.
func (tw *TraceWriter) Count() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.count
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush on close: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace file: %w", closeErr)
	}
	return nil
}

// Path returns the location of the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader streams the entries of a run's trace.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
}

// NewTraceReader opens the trace of runID. A run without a trace yields
// an error matching ErrNotFound.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceReader{
		file: file,
		dec:  json.NewDecoder(bufio.NewReader(file)),
	}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		return nil, fmt.Errorf("failed to decode trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll returns the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the underlying file.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// SummarizeTrace groups the trace of runID by grid point, in the order the
// points were first traced. A run without a trace has no summaries.
func SummarizeTrace(baseDir, runID string) ([]PointTrace, error) {
	reader, err := NewTraceReader(baseDir, runID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer reader.Close()

	type key struct{ lambda, theta float64 }
	index := make(map[key]int)
	var points []PointTrace
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			return points, nil
		}
		if err != nil {
			return nil, err
		}

		k := key{entry.Lambda, entry.Theta}
		i, ok := index[k]
		if !ok {
			i = len(points)
			index[k] = i
			points = append(points, PointTrace{
				Lambda:         entry.Lambda,
				Theta:          entry.Theta,
				FirstObjective: entry.Objective,
			})
		}
		p := &points[i]
		p.Iterations++
		p.FinalObjective = entry.Objective
		p.FinalGradientNorm = entry.GradientNorm
	}
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), traceFile)
}

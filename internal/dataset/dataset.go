// Package dataset loads the numeric inputs of a regression fit: a design
// matrix and a single-column response, either as .npy arrays or as
// whitespace/comma separated text.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmpty is returned for a file without any numeric rows.
	ErrEmpty = errors.New("no numeric data")

	// ErrResponseShape is returned when the response has more than one column.
	ErrResponseShape = errors.New("response must have exactly one column")

	// ErrRagged is returned when text rows have different widths.
	ErrRagged = errors.New("rows have different numbers of columns")
)

// LoadMatrix reads the matrix stored at path. Files ending in .npy are
// decoded with npyio; everything else is parsed as text.
func LoadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var m *mat.Dense
	if strings.EqualFold(filepath.Ext(path), ".npy") {
		m, err = ReadNpy(f)
	} else {
		m, err = ReadText(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return m, nil
}

// ReadNpy decodes a one- or two-dimensional float64 .npy array. A 1-D array
// becomes a single column.
func ReadNpy(r io.Reader) (*mat.Dense, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}

	shape := npy.Header.Descr.Shape
	switch len(shape) {
	case 1:
		var data []float64
		if err := npy.Read(&data); err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, ErrEmpty
		}
		return mat.NewDense(len(data), 1, data), nil
	case 2:
		if shape[0] == 0 || shape[1] == 0 {
			return nil, ErrEmpty
		}
		m := &mat.Dense{}
		if err := npy.Read(m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported array rank %d", len(shape))
	}
}

// ReadText parses one matrix row per line. Values are separated by
// whitespace and/or commas; blank lines and lines starting with '#' are
// skipped.
func ReadText(r io.Reader) (*mat.Dense, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		data []float64
		cols int
		rows int
		line int
	)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == ';'
		})
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("line %d: %w (want %d, got %d)", line, ErrRagged, cols, len(fields))
		}

		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 || cols == 0 {
		return nil, ErrEmpty
	}
	return mat.NewDense(rows, cols, data), nil
}

// WriteNpy writes v as a 1-D float64 .npy array.
func WriteNpy(w io.Writer, v []float64) error {
	return npyio.Write(w, v)
}

// SaveVector writes v to path as .npy.
func SaveVector(path string, v []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteNpy(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Response extracts the single column of m.
func Response(m mat.Matrix) ([]float64, error) {
	_, cols := m.Dims()
	if cols != 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrResponseShape, cols)
	}
	return mat.Col(nil, 0, m), nil
}

// WithIntercept returns a copy of x with a column of ones prepended.
func WithIntercept(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			out.Set(i, j+1, x.At(i, j))
		}
	}
	return out
}

// FromRows builds a matrix from row slices, rejecting empty or ragged input.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d: %w (want %d, got %d)", i, ErrRagged, cols, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// LoadXY reads a design matrix and a single-column response.
func LoadXY(xPath, yPath string) (*mat.Dense, []float64, error) {
	x, err := LoadMatrix(xPath)
	if err != nil {
		return nil, nil, err
	}
	yMat, err := LoadMatrix(yPath)
	if err != nil {
		return nil, nil, err
	}
	y, err := Response(yMat)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", yPath, err)
	}
	return x, y, nil
}

package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReadText(t *testing.T) {
	input := `# predictors
0 1.5
1, 2.5

2;3.5
`
	m, err := ReadText(strings.NewReader(input))
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 3.5, m.At(2, 1))
}

func TestReadTextErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "\n# nothing\n", ErrEmpty},
		{"ragged", "1 2\n3\n", ErrRagged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadText(strings.NewReader(tt.input))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := ReadText(strings.NewReader("1 abc\n"))
	assert.Error(t, err)
}

func TestNpyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNpy(&buf, []float64{1, 2, 3}))

	m, err := ReadNpy(&buf)
	require.NoError(t, err)

	y, err := Response(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, y)
}

func TestReadNpyMatrix(t *testing.T) {
	var buf bytes.Buffer
	src := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, npyio.Write(&buf, src))

	m, err := ReadNpy(&buf)
	require.NoError(t, err)
	assert.True(t, mat.Equal(src, m))
}

func TestLoadMatrixByExtension(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(txt, []byte("1 2\n3 4\n"), 0644))
	m, err := LoadMatrix(txt)
	require.NoError(t, err)
	assert.Equal(t, 4.0, m.At(1, 1))

	npy := filepath.Join(dir, "y.npy")
	require.NoError(t, SaveVector(npy, []float64{7, 8}))
	m, err = LoadMatrix(npy)
	require.NoError(t, err)
	assert.Equal(t, 8.0, m.At(1, 0))

	_, err = LoadMatrix(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestResponseRequiresOneColumn(t *testing.T) {
	_, err := Response(mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrResponseShape)
}

func TestWithIntercept(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	got := WithIntercept(x)

	want := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
	})
	assert.True(t, mat.Equal(want, got))
	assert.Equal(t, 0.0, x.At(0, 0), "input must not be modified")
}

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 4.0, m.At(1, 1))

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrRagged)
}

func TestLoadXY(t *testing.T) {
	dir := t.TempDir()
	xPath := filepath.Join(dir, "x.txt")
	yPath := filepath.Join(dir, "y.txt")
	require.NoError(t, os.WriteFile(xPath, []byte("1 2\n3 4\n"), 0644))
	require.NoError(t, os.WriteFile(yPath, []byte("5\n6\n"), 0644))

	x, y, err := LoadXY(xPath, yPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, y)
	assert.Equal(t, 3.0, x.At(1, 0))

	_, _, err = LoadXY(xPath, xPath)
	assert.ErrorIs(t, err, ErrResponseShape)
}

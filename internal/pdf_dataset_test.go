package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPDFDatasetValidation(t *testing.T) {
	_, err := NewPDFDataset(PDFOptions{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "filepath", cfgErr.Option)
}

func TestExtractRowsGroupsAndSplits(t *testing.T) {
	// two visual lines; the upper line splits into two cells because of
	// the wide horizontal gap, the lower line stays one cell
	texts := []pdf.Text{
		{S: "name", X: 10, Y: 700, W: 20, FontSize: 10},
		{S: "age", X: 100, Y: 700, W: 15, FontSize: 10},
		{S: "an", X: 10, Y: 680, W: 10, FontSize: 10},
		{S: "ne", X: 21, Y: 680, W: 10, FontSize: 10},
	}

	rows := extractRows(texts)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"name", "age"}, rows[0])
	assert.Equal(t, []string{"anne"}, rows[1])
}

func TestExtractRowsSkipsWhitespace(t *testing.T) {
	texts := []pdf.Text{
		{S: "  ", X: 10, Y: 700, W: 5, FontSize: 10},
		{S: "v", X: 10, Y: 680, W: 5, FontSize: 10},
	}
	rows := extractRows(texts)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"v"}, rows[0])
}

func TestFrameFromPDFRowsHeaderPromotion(t *testing.T) {
	rows := [][]string{
		{"name", "age"},
		{"anne", "34"},
		{"ben"},
	}

	frame, err := frameFromPDFRows(rows, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, frame.Columns())
	assert.Equal(t, 2, frame.NumRows())
	// short rows pad with nil
	assert.Equal(t, []any{"ben", nil}, frame.Row(1))
}

func TestFrameFromPDFRowsFallbackNames(t *testing.T) {
	rows := [][]string{
		{"anne", "34"},
		{"ben", "41"},
	}

	frame, err := frameFromPDFRows(rows, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"column_1", "column_2"}, frame.Columns())
	assert.Equal(t, 2, frame.NumRows())
}

func TestPDFSaveUnsupported(t *testing.T) {
	ds, err := NewPDFDataset(PDFOptions{Filepath: "report.pdf"})
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Save(context.Background(), Frames()), ErrSaveUnsupported)
}

func TestPDFExistsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	ds, err := NewPDFDataset(PDFOptions{Filepath: path})
	require.NoError(t, err)
	ok, err := ds.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ds, err = NewPDFDataset(PDFOptions{Filepath: filepath.Join(t.TempDir(), "missing.pdf")})
	require.NoError(t, err)
	ok, err = ds.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPDFLoadRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o644))

	ds, err := NewPDFDataset(PDFOptions{Filepath: path})
	require.NoError(t, err)
	_, err = ds.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pdf")
}

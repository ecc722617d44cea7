package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/ledongthuc/pdf"
)

// PDFOptions configures a load-only dataset that extracts tabular text
// from a PDF. Filepath accepts a plain path, file://, or s3://. Pages
// are 1-based; empty means all pages. FirstRowHeader promotes the
// first extracted row of each page to column names.
type PDFOptions struct {
	Filepath       string `mapstructure:"filepath"`
	Pages          []int  `mapstructure:"pages"`
	FirstRowHeader bool   `mapstructure:"first_row_header"`
}

type PDFDataset struct {
	opts PDFOptions
}

func NewPDFDataset(opts PDFOptions) (*PDFDataset, error) {
	if opts.Filepath == "" {
		return nil, &ConfigError{Option: "filepath", Reason: "a pdf location is required"}
	}
	return &PDFDataset{opts: opts}, nil
}

// Load reads the document and returns one frame per selected page,
// every column typed as object. Extraction groups text runs by
// vertical position into rows and splits cells on horizontal gaps.
func (d *PDFDataset) Load(ctx context.Context) (Data, error) {
	raw, err := d.fetch(ctx)
	if err != nil {
		return Data{}, err
	}
	if !filetype.Is(raw, "pdf") {
		return Data{}, fmt.Errorf("%s is not a pdf file", d.opts.Filepath)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Data{}, fmt.Errorf("parse pdf: %w", err)
	}

	wanted := map[int]bool{}
	for _, p := range d.opts.Pages {
		wanted[p] = true
	}

	var frames []*Frame
	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		if len(wanted) > 0 && !wanted[pageNo] {
			continue
		}
		page := reader.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		rows := extractRows(page.Content().Text)
		if len(rows) == 0 {
			continue
		}
		frame, err := frameFromPDFRows(rows, d.opts.FirstRowHeader)
		if err != nil {
			return Data{}, fmt.Errorf("page %d: %w", pageNo, err)
		}
		frames = append(frames, frame)
	}
	return Frames(frames...), nil
}

func (d *PDFDataset) fetch(ctx context.Context) ([]byte, error) {
	path := d.opts.Filepath
	if strings.HasPrefix(path, "s3://") {
		return downloadS3Object(ctx, path)
	}
	path = strings.TrimPrefix(path, "file://")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return raw, nil
}

func (d *PDFDataset) Save(ctx context.Context, data Data) error {
	return ErrSaveUnsupported
}

func (d *PDFDataset) Exists(ctx context.Context) (bool, error) {
	if strings.HasPrefix(d.opts.Filepath, "s3://") {
		return s3ObjectExists(ctx, d.opts.Filepath), nil
	}
	_, err := os.Stat(strings.TrimPrefix(d.opts.Filepath, "file://"))
	return err == nil, nil
}

func (d *PDFDataset) Describe() map[string]string {
	pages := make([]string, len(d.opts.Pages))
	for i, p := range d.opts.Pages {
		pages[i] = strconv.Itoa(p)
	}
	return map[string]string{
		"type":     "pdf",
		"filepath": d.opts.Filepath,
		"pages":    strings.Join(pages, ","),
	}
}

func downloadS3Object(ctx context.Context, urlStr string) ([]byte, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("parse s3 url: %w", err)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	svc := s3.NewFromConfig(cfg)
	resp, err := svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", urlStr, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// s3ObjectExists probes the object with a HEAD request, so existence
// checks do not transfer the document body.
func s3ObjectExists(ctx context.Context, urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return false
	}
	svc := s3.NewFromConfig(cfg)
	_, err = svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	return err == nil
}

// pdf text geometry

type textRow struct {
	y     float64
	cells []string
}

// extractRows clusters text runs into rows by Y position (PDF
// coordinates grow upward, so rows sort descending) and splits a row
// into cells wherever the horizontal gap exceeds the glyph size.
func extractRows(texts []pdf.Text) [][]string {
	if len(texts) == 0 {
		return nil
	}

	byLine := map[float64][]pdf.Text{}
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		y := math.Round(t.Y)
		byLine[y] = append(byLine[y], t)
	}

	rows := make([]textRow, 0, len(byLine))
	for y, line := range byLine {
		sort.Slice(line, func(i, j int) bool { return line[i].X < line[j].X })

		var cells []string
		var cell strings.Builder
		lastEnd := math.Inf(-1)
		for _, t := range line {
			gap := t.X - lastEnd
			if cell.Len() > 0 && gap > cellGap(t) {
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			}
			cell.WriteString(t.S)
			lastEnd = t.X + t.W
		}
		if cell.Len() > 0 {
			cells = append(cells, strings.TrimSpace(cell.String()))
		}
		rows = append(rows, textRow{y: y, cells: cells})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.cells
	}
	return out
}

func cellGap(t pdf.Text) float64 {
	if t.FontSize > 0 {
		return t.FontSize
	}
	return 4
}

func frameFromPDFRows(rows [][]string, firstRowHeader bool) (*Frame, error) {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	var header []string
	if firstRowHeader && len(rows) > 1 {
		header = rows[0]
		rows = rows[1:]
	}

	series := make([]Series, width)
	for col := 0; col < width; col++ {
		name := "column_" + strconv.Itoa(col+1)
		if col < len(header) && header[col] != "" {
			name = header[col]
		}
		values := make([]any, len(rows))
		for i, row := range rows {
			if col < len(row) {
				values[i] = row[col]
			} else {
				values[i] = nil
			}
		}
		series[col] = Series{Name: name, Dtype: DtypeObject, Values: values}
	}
	return NewFrame(series...)
}

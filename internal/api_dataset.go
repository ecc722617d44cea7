package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"
)

const defaultChunkSize = 100

// APIOptions configures a dataset backed by an HTTP endpoint that
// serves and accepts JSON records. ChunkSize controls how many records
// each save request carries; -1 unwraps and sends every record as a
// bare object instead of a one-element array.
type APIOptions struct {
	URL       string            `mapstructure:"url"`
	Method    string            `mapstructure:"method"`
	Headers   map[string]string `mapstructure:"headers"`
	ChunkSize int               `mapstructure:"chunk_size"`
	TimeoutS  int               `mapstructure:"timeout"`
}

type APIDataset struct {
	opts   APIOptions
	client *http.Client
}

func NewAPIDataset(opts APIOptions) (*APIDataset, error) {
	if opts.URL == "" {
		return nil, &ConfigError{Option: "url", Reason: "an endpoint url is required"}
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkSize < -1 {
		return nil, &ConfigError{Option: "chunk_size", Reason: "must be positive or -1"}
	}
	timeout := 30 * time.Second
	if opts.TimeoutS > 0 {
		timeout = time.Duration(opts.TimeoutS) * time.Second
	}
	return &APIDataset{opts: opts, client: &http.Client{Timeout: timeout}}, nil
}

// Load fetches the endpoint and decodes a JSON array of objects into
// one frame. Column order is the sorted union of record keys, so the
// frame layout does not depend on response ordering quirks.
func (d *APIDataset) Load(ctx context.Context) (Data, error) {
	method := d.opts.Method
	if method == "" {
		method = http.MethodGet
	}
	body, err := d.request(ctx, method, nil)
	if err != nil {
		return Data{}, err
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return Data{}, fmt.Errorf("decode api response: %w", err)
	}

	frame, err := frameFromRecords(records)
	if err != nil {
		return Data{}, err
	}
	return Frames(frame), nil
}

// Save posts the frames' rows as JSON. Records are chunked by
// ChunkSize; a ChunkSize of -1 sends each record individually as a
// bare object.
func (d *APIDataset) Save(ctx context.Context, data Data) error {
	frames := data.Frames()
	if frames == nil {
		return &ConfigError{Option: "data", Reason: "api save requires frames"}
	}

	var records []map[string]any
	for _, frame := range frames {
		cols := frame.Columns()
		for i := 0; i < frame.NumRows(); i++ {
			record := make(map[string]any, len(cols))
			for j, v := range frame.Row(i) {
				record[cols[j]] = v
			}
			records = append(records, record)
		}
	}

	method := d.opts.Method
	if method == "" {
		method = http.MethodPost
	}

	if d.opts.ChunkSize == -1 {
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if _, err := d.request(ctx, method, payload); err != nil {
				return err
			}
		}
		return nil
	}

	for start := 0; start < len(records); start += d.opts.ChunkSize {
		end := start + d.opts.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		payload, err := json.Marshal(records[start:end])
		if err != nil {
			return fmt.Errorf("encode records: %w", err)
		}
		if _, err := d.request(ctx, method, payload); err != nil {
			return err
		}
	}
	return nil
}

func (d *APIDataset) request(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build api request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range d.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read api response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api request to %s failed with status %d", redactURL(d.opts.URL), resp.StatusCode)
	}
	return data, nil
}

func (d *APIDataset) Exists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("build api request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400, nil
}

func (d *APIDataset) Describe() map[string]string {
	return map[string]string{
		"type":       "api",
		"url":        redactURL(d.opts.URL),
		"method":     d.opts.Method,
		"chunk_size": strconv.Itoa(d.opts.ChunkSize),
	}
}

// frameFromRecords builds a frame from decoded JSON objects, inferring
// a dtype per column from the observed values.
func frameFromRecords(records []map[string]any) (*Frame, error) {
	keys := map[string]bool{}
	for _, record := range records {
		for k := range record {
			keys[k] = true
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	series := make([]Series, len(names))
	for i, name := range names {
		values := make([]any, len(records))
		for j, record := range records {
			values[j] = record[name]
		}
		series[i] = Series{Name: name, Dtype: inferJSONDtype(values), Values: values}
	}
	return NewFrame(series...)
}

func inferJSONDtype(values []any) Dtype {
	dtype := Dtype(-1)
	for _, v := range values {
		if v == nil {
			continue
		}
		var observed Dtype
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				observed = DtypeInt
			} else {
				observed = DtypeFloat
			}
		case bool:
			observed = DtypeBool
		default:
			observed = DtypeObject
		}
		if dtype == Dtype(-1) {
			dtype = observed
		} else {
			dtype = mergeDtype(dtype, observed)
		}
	}
	if dtype == Dtype(-1) {
		return DtypeObject
	}
	return dtype
}

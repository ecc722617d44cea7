package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	bodies []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	h.bodies = append(h.bodies, string(body))
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func TestNewAPIDatasetValidation(t *testing.T) {
	var cfgErr *ConfigError

	_, err := NewAPIDataset(APIOptions{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "url", cfgErr.Option)

	_, err = NewAPIDataset(APIOptions{URL: "http://example.test", ChunkSize: -2})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chunk_size", cfgErr.Option)
}

func TestAPILoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.Write([]byte(`[{"id": 1, "name": "anne"}, {"id": 2, "score": 0.5}]`))
	}))
	defer srv.Close()

	ds, err := NewAPIDataset(APIOptions{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
	})
	require.NoError(t, err)

	data, err := ds.Load(context.Background())
	require.NoError(t, err)
	frames := data.Frames()
	require.Len(t, frames, 1)
	frame := frames[0]

	// sorted union of record keys, gaps filled with nil
	assert.Equal(t, []string{"id", "name", "score"}, frame.Columns())
	assert.Equal(t, 2, frame.NumRows())
	assert.Equal(t, []any{float64(2), nil, 0.5}, frame.Row(1))

	id, ok := frame.Series("id")
	require.True(t, ok)
	assert.Equal(t, DtypeInt, id.Dtype)
	score, ok := frame.Series("score")
	require.True(t, ok)
	assert.Equal(t, DtypeFloat, score.Dtype)
}

func TestAPILoadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	ds, err := NewAPIDataset(APIOptions{URL: srv.URL})
	require.NoError(t, err)

	_, err = ds.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func saveRecords(t *testing.T, chunkSize, numRows int) []string {
	t.Helper()
	handler := &recordingHandler{}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ds, err := NewAPIDataset(APIOptions{URL: srv.URL, ChunkSize: chunkSize})
	require.NoError(t, err)

	values := make([]any, numRows)
	for i := range values {
		values[i] = i
	}
	frame := mustFrame(t, Series{Name: "id", Dtype: DtypeInt, Values: values})
	require.NoError(t, ds.Save(context.Background(), Frames(frame)))
	return handler.bodies
}

func TestAPISaveChunking(t *testing.T) {
	bodies := saveRecords(t, 2, 5)
	require.Len(t, bodies, 3)

	// each request carries a JSON array of at most chunk_size records
	var first []map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &first))
	assert.Len(t, first, 2)
	var last []map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodies[2]), &last))
	assert.Len(t, last, 1)
}

func TestAPISaveUnwrapped(t *testing.T) {
	// chunk_size -1 sends each record as a bare object
	bodies := saveRecords(t, -1, 3)
	require.Len(t, bodies, 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &record))
	assert.Equal(t, float64(0), record["id"])
}

func TestAPISaveRequiresFrames(t *testing.T) {
	ds, err := NewAPIDataset(APIOptions{URL: "http://example.test"})
	require.NoError(t, err)

	saveErr := ds.Save(context.Background(), RawDDL("DROP TABLE x"))
	var cfgErr *ConfigError
	require.ErrorAs(t, saveErr, &cfgErr)
}

func TestAPIExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ds, err := NewAPIDataset(APIOptions{URL: srv.URL})
	require.NoError(t, err)

	ok, err := ds.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInferJSONDtype(t *testing.T) {
	assert.Equal(t, DtypeInt, inferJSONDtype([]any{float64(1), float64(2)}))
	assert.Equal(t, DtypeFloat, inferJSONDtype([]any{float64(1), 1.5}))
	assert.Equal(t, DtypeBool, inferJSONDtype([]any{true, nil, false}))
	assert.Equal(t, DtypeObject, inferJSONDtype([]any{"a", float64(1)}))
	assert.Equal(t, DtypeObject, inferJSONDtype([]any{nil, nil}))
	assert.Equal(t, DtypeObject, inferJSONDtype(nil))
}

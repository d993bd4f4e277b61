package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockEngine struct {
	mock.Mock
	events chan []byte
}

func (m *mockEngine) Submit(ctx context.Context, queryID, query string) error {
	return m.Called(queryID, query).Error(0)
}

func (m *mockEngine) Cancel(queryID string) bool {
	return m.Called(queryID).Bool(0)
}

func (m *mockEngine) Record(ctx context.Context, queryID string) (*store.Record, error) {
	args := m.Called(queryID)
	rec, _ := args.Get(0).(*store.Record)
	return rec, args.Error(1)
}

func (m *mockEngine) List(ctx context.Context, limit int) ([]store.Record, error) {
	args := m.Called(limit)
	recs, _ := args.Get(0).([]store.Record)
	return recs, args.Error(1)
}

func (m *mockEngine) Subscribe(queryID string) (<-chan []byte, func()) {
	m.Called(queryID)
	return m.events, func() {}
}

func (m *mockEngine) Health() engine.Health {
	return engine.Health{Snapshot: observability.Snapshot{Active: 1, Completed: 3}, Pending: 2}
}

func newTestServer(t *testing.T) (*mockEngine, *httptest.Server) {
	t.Helper()
	eng := &mockEngine{events: make(chan []byte, 4)}
	srv := httptest.NewServer(NewServer(eng, zaptest.NewLogger(t)).Handler())
	t.Cleanup(srv.Close)
	return eng, srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestInteract(t *testing.T) {
	eng, srv := newTestServer(t)
	eng.On("Submit", "q1", "go to example.com").Return(nil).Once()
	eng.On("Submit", "busy", "again").Return(fmt.Errorf("%w: busy", engine.ErrDuplicate)).Once()
	eng.On("Submit", mock.AnythingOfType("string"), "fresh").Return(nil).Once()

	resp, out := post(t, srv.URL+"/interact", `{"query": "go to example.com", "query_id": "q1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"query_id": "q1", "status": "processing"}, out)

	resp, out = post(t, srv.URL+"/interact", `{"query": "fresh"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["query_id"], 36)

	resp, _ = post(t, srv.URL+"/interact", `{"query": "again", "query_id": "busy"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, out = post(t, srv.URL+"/interact", `{"query_id": "q2"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Query is required", out["error"])

	resp, _ = post(t, srv.URL+"/interact", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	eng.AssertExpectations(t)
}

func TestQueries(t *testing.T) {
	eng, srv := newTestServer(t)
	eng.On("Record", "q1").Return(&store.Record{QueryID: "q1", Query: "x", Status: store.StatusDone}, nil)
	eng.On("Record", "nope").Return(nil, fmt.Errorf("%w: nope", store.ErrNotFound))
	eng.On("List", 5).Return([]store.Record{{QueryID: "q1"}}, nil)
	eng.On("List", 0).Return(nil, nil)

	resp, err := http.Get(srv.URL + "/queries/q1")
	require.NoError(t, err)
	var rec store.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	assert.Equal(t, store.StatusDone, rec.Status)

	resp, err = http.Get(srv.URL + "/queries/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/queries?limit=5")
	require.NoError(t, err)
	var recs []store.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	resp.Body.Close()
	assert.Len(t, recs, 1)

	resp, err = http.Get(srv.URL + "/queries")
	require.NoError(t, err)
	recs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	resp.Body.Close()
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	resp, err = http.Get(srv.URL + "/queries?limit=-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	eng, srv := newTestServer(t)
	eng.On("Cancel", "q1").Return(true)
	eng.On("Cancel", "q2").Return(false)

	for id, want := range map[string]int{"q1": http.StatusOK, "q2": http.StatusNotFound} {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/queries/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, id)
	}
}

func TestHealthAndCORS(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["completed"])
	assert.EqualValues(t, 2, body["pending"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/interact", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStream(t *testing.T) {
	eng, srv := newTestServer(t)
	eng.On("Subscribe", "q1").Return()
	eng.events <- []byte(`{"query_id":"q1","message":"Browser launched"}`)
	eng.events <- []byte(`{"query_id":"q1","message":"All actions done","done":true}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream?query_id=q1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() && len(data) < 2 {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			data = append(data, line)
		}
	}
	require.Len(t, data, 2)
	assert.Contains(t, data[0], "Browser launched")
	assert.Contains(t, data[1], `"done":true`)
	eng.AssertCalled(t, "Subscribe", "q1")
}

package node

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
)

func serve(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func txFrom(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		TxID int64 `json:"tx"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.TxID
}

func TestServer_CreateAndPollOutcome(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run(30)

	n := c.nodes[0]
	outcomes := NewOutcomes(n.Address(), 16)
	s := NewServer(n, outcomes, zaptest.NewLogger(t))

	id := txFrom(t, serve(t, s, http.MethodPost, "/kv/a", "1"))
	c.run(2)
	for _, e := range c.audit.Events() {
		outcomes.Record(e)
	}

	rec := serve(t, s, http.MethodGet, "/tx/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		TxID    int64  `json:"tx"`
		Op      string `json:"op"`
		Key     string `json:"key"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.TxID)
	assert.Equal(t, "CREATE", got.Op)
	assert.Equal(t, "a", got.Key)
	assert.Equal(t, string(audit.OpSuccess), got.Outcome)
}

func TestServer_Errors(t *testing.T) {
	c := newTestCluster(t, 1)
	s := NewServer(c.nodes[0], NewOutcomes(c.nodes[0].Address(), 0), nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unavailable", http.MethodPut, "/kv/a", "1", http.StatusServiceUnavailable},
		{"empty value", http.MethodPost, "/kv/a", "", http.StatusBadRequest},
		{"missing key", http.MethodGet, "/kv/", "", http.StatusNotFound},
		{"bad tx id", http.MethodGet, "/tx/abc", "", http.StatusBadRequest},
		{"unknown tx", http.MethodGet, "/tx/42", "", http.StatusNotFound},
		{"method", http.MethodPatch, "/kv/a", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_FailedNode(t *testing.T) {
	c := newTestCluster(t, 1)
	c.nodes[0].Fail()
	s := NewServer(c.nodes[0], nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodDelete, "/kv/a", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/tx/1", "").Code)
}

func TestServer_Members(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run(30)
	s := NewServer(c.nodes[0], nil, nil)

	rec := serve(t, s, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		State   string `json:"state"`
		Members []struct {
			Address string `json:"address"`
		} `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "IN_GROUP", got.State)
	require.Len(t, got.Members, 3)
	assert.Equal(t, "1:0", got.Members[0].Address)
}

func TestOutcomes_KeepsLatest(t *testing.T) {
	self := addr.New(1, 0)
	o := NewOutcomes(self, 2)

	for id := int64(1); id <= 3; id++ {
		o.Record(audit.Event{Kind: audit.OpSuccess, Node: self, Coordinator: true, TxID: id})
	}
	o.Record(audit.Event{Kind: audit.OpSuccess, Node: self, TxID: 4})
	o.Record(audit.Event{Kind: audit.OpFailure, Node: addr.New(2, 0), Coordinator: true, TxID: 5})

	_, ok := o.Lookup(1)
	assert.False(t, ok, "oldest outcome should be evicted")
	for _, id := range []int64{2, 3} {
		_, ok := o.Lookup(id)
		assert.True(t, ok, "outcome %d", id)
	}
	for _, id := range []int64{4, 5} {
		_, ok := o.Lookup(id)
		assert.False(t, ok, "outcome %d should be ignored", id)
	}
}

func TestServer_WriteJSONEncodingFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{logger: zap.New(core)}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEqual(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, logs.FilterMessage("encoding response").Len())
}

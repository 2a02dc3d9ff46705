package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/internal/blockmeta"
	"github.com/driftfs/driftfs/internal/cluster"
)

// fakeReporter serves canned node statuses
type fakeReporter struct {
	statuses map[string]cluster.NodeStatus
}

func (f *fakeReporter) NodeStatus(addr string) (cluster.NodeStatus, error) {
	status, ok := f.statuses[addr]
	if !ok {
		return cluster.NodeStatus{}, cluster.ErrNodeNotFound
	}
	return status, nil
}

func (f *fakeReporter) NodeReport() []cluster.NodeStatus {
	out := make([]cluster.NodeStatus, 0, len(f.statuses))
	for _, status := range f.statuses {
		out = append(out, status)
	}
	return out
}

// fakeRefresher counts refresh triggers
type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

// fakeSink records ingested heartbeats and block reports
type fakeSink struct {
	heartbeats map[string]cluster.Heartbeat
	reports    map[string][]string
	err        error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		heartbeats: make(map[string]cluster.Heartbeat),
		reports:    make(map[string][]string),
	}
}

func (f *fakeSink) ReportHeartbeat(addr string, hb cluster.Heartbeat) error {
	if f.err != nil {
		return f.err
	}
	if addr == "" {
		return cluster.ErrEmptyAddress
	}
	f.heartbeats[addr] = hb
	return nil
}

func (f *fakeSink) ReportBlocks(addr string, blocks []string) error {
	if f.err != nil {
		return f.err
	}
	if addr == "" {
		return cluster.ErrEmptyAddress
	}
	f.reports[addr] = blocks
	return nil
}

func newTestRouter(reporter ClusterReporter, refresher Refresher, sink HeartbeatSink, locator BlockLocator) *mux.Router {
	router := mux.NewRouter()
	NewClusterHandler(reporter, refresher, sink, locator).RegisterRoutes(router)
	return router
}

func TestHandleNodeStatus(t *testing.T) {
	reporter := &fakeReporter{statuses: map[string]cluster.NodeStatus{
		"node1:7000": {
			Address:                  "node1:7000",
			State:                    "DECOMMISSION_INPROGRESS",
			LastHeartbeatAge:         2 * time.Second,
			Reachable:                true,
			IsDecommissionInProgress: true,
		},
	}}
	router := newTestRouter(reporter, &fakeRefresher{}, newFakeSink(), blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodGet, "/cluster/nodes/node1:7000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		cluster.NodeStatus
		Report string `json:"report"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "node1:7000", resp.Address)
	assert.True(t, resp.IsDecommissionInProgress)
	assert.Contains(t, resp.Report, "DECOMMISSION_INPROGRESS")
}

func TestHandleNodeStatusNotFound(t *testing.T) {
	router := newTestRouter(&fakeReporter{statuses: map[string]cluster.NodeStatus{}}, &fakeRefresher{}, newFakeSink(), blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodGet, "/cluster/nodes/ghost:7000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNodeReport(t *testing.T) {
	reporter := &fakeReporter{statuses: map[string]cluster.NodeStatus{
		"node1:7000": {Address: "node1:7000", State: "NORMAL", Reachable: true},
		"node2:7000": {Address: "node2:7000", State: "DECOMMISSIONED", IsDecommissioned: true},
	}}
	router := newTestRouter(reporter, &fakeRefresher{}, newFakeSink(), blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodGet, "/cluster/nodes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)
}

func TestHandleRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	router := newTestRouter(&fakeReporter{}, refresher, newFakeSink(), blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodPost, "/cluster/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, refresher.calls)
}

func TestHandleHeartbeat(t *testing.T) {
	sink := newFakeSink()
	router := newTestRouter(&fakeReporter{}, &fakeRefresher{}, sink, blockmeta.NewBlockMap())

	body, _ := json.Marshal(map[string]interface{}{
		"address":      "node1:7000",
		"capacity":     1024,
		"used":         128,
		"added_blocks": []string{"blk-1"},
	})
	req := httptest.NewRequest(http.MethodPost, "/cluster/heartbeat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	hb, ok := sink.heartbeats["node1:7000"]
	require.True(t, ok)
	assert.Equal(t, uint64(1024), hb.Capacity)
	assert.Equal(t, []string{"blk-1"}, hb.AddedBlocks)
}

func TestHandleHeartbeatBadRequests(t *testing.T) {
	sink := newFakeSink()
	router := newTestRouter(&fakeReporter{}, &fakeRefresher{}, sink, blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodPost, "/cluster/heartbeat", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing address
	req = httptest.NewRequest(http.MethodPost, "/cluster/heartbeat", bytes.NewReader([]byte(`{"capacity":1}`)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown node under pre-registration policy
	sink.err = cluster.ErrUnknownNode
	req = httptest.NewRequest(http.MethodPost, "/cluster/heartbeat", bytes.NewReader([]byte(`{"address":"x:1"}`)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleBlockReport(t *testing.T) {
	sink := newFakeSink()
	router := newTestRouter(&fakeReporter{}, &fakeRefresher{}, sink, blockmeta.NewBlockMap())

	body, _ := json.Marshal(map[string]interface{}{
		"address": "node1:7000",
		"blocks":  []string{"blk-1", "blk-2"},
	})
	req := httptest.NewRequest(http.MethodPost, "/cluster/blockreport", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"blk-1", "blk-2"}, sink.reports["node1:7000"])
}

func TestHandleFileBlocks(t *testing.T) {
	blocks := blockmeta.NewBlockMap()
	require.NoError(t, blocks.AddFile("data.dat", 3, []string{"blk-1", "blk-2"}))
	require.NoError(t, blocks.AddPrimaryReplica("blk-1", "node1:7000"))
	require.NoError(t, blocks.AddReplica("blk-1", "node2:7000"))

	router := newTestRouter(&fakeReporter{}, &fakeRefresher{}, newFakeSink(), blocks)

	req := httptest.NewRequest(http.MethodGet, "/files/data.dat/blocks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []blockmeta.BlockInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "blk-1", resp[0].ID)
	assert.Len(t, resp[0].Replicas, 2)

	req = httptest.NewRequest(http.MethodGet, "/files/missing.dat/blocks", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(&fakeReporter{}, &fakeRefresher{}, newFakeSink(), blockmeta.NewBlockMap())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

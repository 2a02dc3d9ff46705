package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftfs/driftfs/internal/blockmeta"
	"github.com/driftfs/driftfs/internal/cluster"
	"github.com/driftfs/driftfs/internal/metrics"
)

// ClusterReporter is the read-only decommission status surface
type ClusterReporter interface {
	NodeStatus(addr string) (cluster.NodeStatus, error)
	NodeReport() []cluster.NodeStatus
}

// Refresher forces a re-read of the exclude list and applies the deltas
type Refresher interface {
	Refresh(ctx context.Context) error
}

// HeartbeatSink ingests node liveness and inventory reports
type HeartbeatSink interface {
	ReportHeartbeat(addr string, hb cluster.Heartbeat) error
	ReportBlocks(addr string, blocks []string) error
}

// BlockLocator resolves a file to its per-block replica locations
type BlockLocator interface {
	FileBlocks(name string) ([]blockmeta.BlockInfo, error)
}

// ClusterHandler serves the cluster administration and reporting endpoints
type ClusterHandler struct {
	reporter  ClusterReporter
	refresher Refresher
	sink      HeartbeatSink
	locator   BlockLocator
}

// NewClusterHandler creates a new instance of ClusterHandler
func NewClusterHandler(reporter ClusterReporter, refresher Refresher, sink HeartbeatSink, locator BlockLocator) *ClusterHandler {
	return &ClusterHandler{
		reporter:  reporter,
		refresher: refresher,
		sink:      sink,
		locator:   locator,
	}
}

// RegisterRoutes registers cluster reporting and ingestion routes
func (h *ClusterHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cluster/nodes", h.handleNodeReport).Methods(http.MethodGet)
	r.HandleFunc("/cluster/nodes/{addr}", h.handleNodeStatus).Methods(http.MethodGet)
	r.HandleFunc("/cluster/refresh", h.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/cluster/heartbeat", h.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/cluster/blockreport", h.handleBlockReport).Methods(http.MethodPost)
	r.HandleFunc("/files/{name}/blocks", h.handleFileBlocks).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

// nodeStatusResponse decorates the status with the human-readable report line
type nodeStatusResponse struct {
	cluster.NodeStatus
	Report string `json:"report"`
}

// handleNodeReport handles GET /cluster/nodes requests
func (h *ClusterHandler) handleNodeReport(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.NodeReport()
	out := make([]nodeStatusResponse, 0, len(report))
	for _, status := range report {
		out = append(out, nodeStatusResponse{NodeStatus: status, Report: status.Report()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleNodeStatus handles GET /cluster/nodes/{addr} requests
func (h *ClusterHandler) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr := vars["addr"]

	status, err := h.reporter.NodeStatus(addr)
	if err != nil {
		if errors.Is(err, cluster.ErrNodeNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nodeStatusResponse{NodeStatus: status, Report: status.Report()})
}

// handleRefresh handles POST /cluster/refresh requests
func (h *ClusterHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// heartbeatRequest is the ingestion payload for POST /cluster/heartbeat
type heartbeatRequest struct {
	Address string `json:"address"`
	cluster.Heartbeat
}

// handleHeartbeat handles POST /cluster/heartbeat requests
func (h *ClusterHandler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.sink.ReportHeartbeat(req.Address, req.Heartbeat); err != nil {
		switch {
		case errors.Is(err, cluster.ErrEmptyAddress):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, cluster.ErrUnknownNode):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	metrics.GetMetrics().HeartbeatsTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// blockReportRequest is the ingestion payload for POST /cluster/blockreport
type blockReportRequest struct {
	Address string   `json:"address"`
	Blocks  []string `json:"blocks"`
}

// handleBlockReport handles POST /cluster/blockreport requests
func (h *ClusterHandler) handleBlockReport(w http.ResponseWriter, r *http.Request) {
	var req blockReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.sink.ReportBlocks(req.Address, req.Blocks); err != nil {
		switch {
		case errors.Is(err, cluster.ErrEmptyAddress):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, cluster.ErrUnknownNode):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFileBlocks handles GET /files/{name}/blocks requests
func (h *ClusterHandler) handleFileBlocks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	blocks, err := h.locator.FileBlocks(name)
	if err != nil {
		if errors.Is(err, blockmeta.ErrFileNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// handleHealth handles GET /health requests
func (h *ClusterHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

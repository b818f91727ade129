package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"FlowSpectra/internal/geo"
	"FlowSpectra/internal/graph"
	"FlowSpectra/internal/model"
	"FlowSpectra/internal/query"
	"FlowSpectra/internal/table"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// APIHandler serves the most recent tagged table written by the pipeline.
// History queries need a ClickHouse sink; without one they answer 404.
type APIHandler struct {
	taggedPath string
	locator    *geo.Locator
	history    query.Querier
}

// FlowsResponse is the body of GET /api/v1/flows.
type FlowsResponse struct {
	Count int         `json:"count"`
	Flows []FlowEntry `json:"flows"`
}

// FlowEntry is one tagged record in API form.
type FlowEntry struct {
	Timestamp   string      `json:"timestamp,omitempty"`
	InterfaceID string      `json:"interface_id,omitempty"`
	SrcAddr     string      `json:"srcaddr"`
	DstAddr     string      `json:"dstaddr"`
	SrcPort     string      `json:"srcport,omitempty"`
	DstPort     string      `json:"dstport,omitempty"`
	Protocol    string      `json:"protocol,omitempty"`
	Packets     uint64      `json:"packets"`
	Bytes       uint64      `json:"bytes"`
	Action      string      `json:"action,omitempty"`
	SrcTag      model.Label `json:"srcaddr_tag"`
	DstTag      model.Label `json:"dstaddr_tag"`
}

// Router wires the API routes.
func (h *APIHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows", h.flowsHandler).Methods("GET")
	r.HandleFunc("/api/v1/graph", h.graphHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/labels", h.labelTotalsHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/top", h.topTalkersHandler).Methods("GET")
	return r
}

func (h *APIHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// flowsHandler lists tagged records, optionally only those with ?tag= on
// either side.
func (h *APIHandler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	records, ok := h.loadTagged(w)
	if !ok {
		return
	}

	tag := model.Label(r.URL.Query().Get("tag"))
	resp := FlowsResponse{Flows: make([]FlowEntry, 0, len(records))}
	for _, rec := range records {
		if tag != "" && rec.SrcTag != tag && rec.DstTag != tag {
			continue
		}
		resp.Flows = append(resp.Flows, FlowEntry{
			Timestamp:   rec.Timestamp,
			InterfaceID: rec.InterfaceID,
			SrcAddr:     rec.SrcAddr,
			DstAddr:     rec.DstAddr,
			SrcPort:     rec.SrcPort,
			DstPort:     rec.DstPort,
			Protocol:    rec.Protocol,
			Packets:     rec.Packets,
			Bytes:       rec.Bytes,
			Action:      rec.Action,
			SrcTag:      rec.SrcTag,
			DstTag:      rec.DstTag,
		})
	}
	resp.Count = len(resp.Flows)
	writeJSON(w, http.StatusOK, resp)
}

// graphHandler returns the traffic graph as node and edge lists.
func (h *APIHandler) graphHandler(w http.ResponseWriter, r *http.Request) {
	records, ok := h.loadTagged(w)
	if !ok {
		return
	}

	var country graph.CountryFunc
	if h.locator != nil {
		country = h.locator.Country
	}
	writeJSON(w, http.StatusOK, graph.NewView(graph.Build(records), country))
}

// labelTotalsHandler aggregates the stored history per destination label.
func (h *APIHandler) labelTotalsHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.totalsRequest(w, r)
	if !ok {
		return
	}
	totals, err := h.history.LabelTotals(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query label totals: %v", err), http.StatusInternalServerError)
		return
	}
	if totals == nil {
		totals = []query.LabelTotal{}
	}
	writeJSON(w, http.StatusOK, totals)
}

// topTalkersHandler lists the heaviest stored address pairs.
func (h *APIHandler) topTalkersHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.totalsRequest(w, r)
	if !ok {
		return
	}
	pairs, err := h.history.TopTalkers(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query top talkers: %v", err), http.StatusInternalServerError)
		return
	}
	if pairs == nil {
		pairs = []query.PairTotal{}
	}
	writeJSON(w, http.StatusOK, pairs)
}

// totalsRequest parses ?interface=, ?tag=, ?since=<duration> and ?limit=.
func (h *APIHandler) totalsRequest(w http.ResponseWriter, r *http.Request) (query.TotalsRequest, bool) {
	if h.history == nil {
		http.Error(w, "history is not available, enable the clickhouse sink", http.StatusNotFound)
		return query.TotalsRequest{}, false
	}

	params := r.URL.Query()
	req := query.TotalsRequest{
		InterfaceID: params.Get("interface"),
		Tag:         model.Label(params.Get("tag")),
	}
	if v := params.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, fmt.Sprintf("invalid since '%s': expected a positive duration", v), http.StatusBadRequest)
			return query.TotalsRequest{}, false
		}
		req.Since = time.Now().Add(-d)
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit '%s'", v), http.StatusBadRequest)
			return query.TotalsRequest{}, false
		}
		req.Limit = n
	}
	return req, true
}

func (h *APIHandler) loadTagged(w http.ResponseWriter) ([]model.TaggedFlowRecord, bool) {
	records, err := table.ReadFile(h.taggedPath, table.ReadTagged)
	if err == nil {
		return records, true
	}
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no tagged table yet, run the tag stage first", http.StatusNotFound)
		return nil, false
	}
	log.Error("Failed to read tagged table", "path", h.taggedPath, "error", err)
	http.Error(w, fmt.Sprintf("failed to read tagged table: %v", err), http.StatusInternalServerError)
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

package restserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chrissnell/resilience/internal/report"
	"github.com/chrissnell/resilience/internal/storage"
	"github.com/chrissnell/resilience/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// FailuresResponse lists failed runs and undefined scores of a batch.
type FailuresResponse struct {
	Runs    []report.FailureView       `json:"runs"`
	Metrics []report.MetricFailureView `json:"metrics"`
}

// HealthResponse reports whether a batch is being served and how the last
// writes to the result stores went.
type HealthResponse struct {
	Status  string                    `json:"status"`
	BatchID string                    `json:"batch_id,omitempty"`
	Stores  map[string]storage.Health `json:"stores,omitempty"`
}

var noCache = map[string]string{"Cache-Control": "no-store"}

// snapshot returns the served snapshot or answers 503 when the first
// analysis has not finished yet.
func (h *Handlers) snapshot(w http.ResponseWriter, req *http.Request) (*Snapshot, bool) {
	s := h.controller.source.Current()
	if s == nil || s.Batch == nil {
		h.writeError(w, req, http.StatusServiceUnavailable, "no batch has been analyzed yet")
		return nil, false
	}
	return s, true
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data, noCache); err != nil {
		h.controller.logger.Errorw("error encoding response", "path", req.URL.Path, "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.controller.logger.Errorw("error encoding error response", "path", req.URL.Path, "error", err)
	}
}

// GetBatch returns the complete report of the served batch.
func (h *Handlers) GetBatch(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	h.write(w, req, report.Build(s.Batch))
}

// GetRuns returns the detection results of every successful run.
func (h *Handlers) GetRuns(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	runs := make([]report.RunView, 0, len(s.Batch.Results))
	for _, r := range s.Batch.Results {
		runs = append(runs, report.NewRunView(r))
	}
	h.write(w, req, runs)
}

// GetRun returns the detection result of one run. A run that failed is
// answered with 422 and its failure.
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]

	if r, found := s.Batch.Result(id); found {
		h.write(w, req, report.NewRunView(r))
		return
	}
	for _, f := range report.Failures(s.Batch) {
		if f.RunID == id {
			if err := h.formatter.WriteStatus(w, req, http.StatusUnprocessableEntity, f, noCache); err != nil {
				h.controller.logger.Errorw("error encoding response", "path", req.URL.Path, "error", err)
			}
			return
		}
	}
	h.writeError(w, req, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
}

// GetOverlay returns the series of one run with its detected windows.
func (h *Handlers) GetOverlay(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]

	r, found := s.Batch.Result(id)
	table, haveTable := s.Tables[id]
	if !found || !haveTable {
		h.writeError(w, req, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}

	o, err := report.BuildOverlay(table, r, s.Config.Metrics, s.Config.Effect)
	if err != nil {
		h.controller.logger.Errorw("error building overlay", "run", id, "error", err)
		h.writeError(w, req, http.StatusInternalServerError, "could not build overlay")
		return
	}
	h.write(w, req, o)
}

// GetScores returns the raw score table.
func (h *Handlers) GetScores(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	h.write(w, req, report.NewScoreTableView(s.Batch.Scores))
}

// GetNormalizedScores returns the batch-normalized score table.
func (h *Handlers) GetNormalizedScores(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	h.write(w, req, report.NewScoreTableView(s.Batch.Normalized))
}

func (h *Handlers) GetSummary(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	h.write(w, req, report.Summarize(s.Batch.Scores))
}

func (h *Handlers) GetFailures(w http.ResponseWriter, req *http.Request) {
	s, ok := h.snapshot(w, req)
	if !ok {
		return
	}
	h.write(w, req, FailuresResponse{
		Runs:    report.Failures(s.Batch),
		Metrics: report.MetricFailures(s.Batch),
	})
}

// GetStoredBatches lists the batches in the primary result store.
func (h *Handlers) GetStoredBatches(w http.ResponseWriter, req *http.Request) {
	store := h.controller.store
	if store == nil {
		h.writeError(w, req, http.StatusNotFound, "no result store configured")
		return
	}

	batches, err := store.ListBatches(req.Context())
	if err != nil {
		h.controller.logger.Errorw("error listing batches", "error", err)
		h.writeError(w, req, http.StatusInternalServerError, "could not list batches")
		return
	}
	if batches == nil {
		batches = []storage.BatchSummary{}
	}
	h.write(w, req, batches)
}

// GetStoredBatch returns the report of a persisted batch.
func (h *Handlers) GetStoredBatch(w http.ResponseWriter, req *http.Request) {
	store := h.controller.store
	if store == nil {
		h.writeError(w, req, http.StatusNotFound, "no result store configured")
		return
	}
	id := mux.Vars(req)["id"]

	b, err := store.LoadBatch(req.Context(), id)
	switch {
	case errors.Is(err, storage.ErrBatchNotFound):
		h.writeError(w, req, http.StatusNotFound, fmt.Sprintf("batch %s not found", id))
		return
	case err != nil:
		h.controller.logger.Errorw("error loading batch", "batch", id, "error", err)
		h.writeError(w, req, http.StatusInternalServerError, "could not load batch")
		return
	}
	h.write(w, req, report.Build(b))
}

func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: "starting"}
	if s := h.controller.source.Current(); s != nil && s.Batch != nil {
		resp = HealthResponse{Status: "ok", BatchID: s.Batch.ID}
	}
	if h.controller.health != nil {
		resp.Stores = h.controller.health.GetAllHealth()
	}
	h.write(w, req, resp)
}

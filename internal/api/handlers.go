// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"tigdiff/internal/errors"
	"tigdiff/internal/logging"
	"tigdiff/internal/odb"
	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
	"tigdiff/internal/treediff"
	"tigdiff/internal/validation"
	shared "tigdiff/shared/types"
)

// Detector produces a rewrite report for two revisions
type Detector interface {
	Detect(ctx context.Context, oldRev, newRev string, rw rewrites.Rewrites) (*report.Report, error)
}

// RewritesHandler runs rename and copy detection on request
type RewritesHandler struct {
	detector Detector
	box      report.Box
	defaults rewrites.Rewrites
	logger   *logging.Logger
}

func NewRewritesHandler(detector Detector, box report.Box, defaults rewrites.Rewrites, logger *logging.Logger) *RewritesHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RewritesHandler{
		detector: detector,
		box:      box,
		defaults: defaults,
		logger:   logger,
	}
}

func (h *RewritesHandler) Detect(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateDetectRequest(r)
	if err != nil {
		errors.Write(w, err)
		return
	}

	rw := h.defaults
	if req.Rewrites != nil {
		rw = *req.Rewrites
	}

	rep, err := h.detector.Detect(r.Context(), req.Old, req.New, rw)
	if err != nil {
		h.logger.WithRequestID(r.Context()).Warn("detection failed",
			zap.String("old", req.Old),
			zap.String("new", req.New),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if req.Save {
		if err := h.box.Create(rep); err != nil {
			writeError(w, err)
			return
		}
		status = http.StatusCreated
	}

	h.logger.WithRequestID(r.Context()).Info("detection finished",
		zap.String("old_tree", rep.OldTree),
		zap.String("new_tree", rep.NewTree),
		zap.Int("entries", len(rep.Entries)),
		zap.Int("similarity_checks", rep.Outcome.SimilarityChecks),
		zap.Bool("saved", req.Save),
	)

	writeJSON(w, status, shared.DetectResponse{
		Report:  rep,
		Summary: rep.Summary(),
		Saved:   req.Save,
	})
}

// ReportHandler serves stored reports
type ReportHandler struct {
	box report.Box
}

func NewReportHandler(box report.Box) *ReportHandler {
	return &ReportHandler{box: box}
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		errors.Write(w, errors.ValidationError("missing id", nil))
		return
	}

	rep, err := h.box.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		errors.Write(w, errors.ValidationError("missing id", nil))
		return
	}

	if err := h.box.Delete(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List returns stored reports, optionally narrowed to one pair of trees
// with the old_tree and new_tree query parameters.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		reports []*report.Report
		err     error
	)

	oldTree, newTree := r.URL.Query().Get("old_tree"), r.URL.Query().Get("new_tree")
	if oldTree != "" || newTree != "" {
		reports, err = h.box.FindByTrees(oldTree, newTree)
	} else {
		reports, err = h.box.List()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

// HealthHandler reports the served repository and blob cache usage. cache
// may be nil.
func HealthHandler(repository string, cache *odb.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := shared.Health{
			Status:     "healthy",
			Repository: repository,
		}
		if cache != nil {
			stats := cache.Stats()
			health.Cache = &stats
		}
		writeJSON(w, http.StatusOK, health)
	}
}

// Routes registers every endpoint on mux
func Routes(mux *http.ServeMux, rw *RewritesHandler, reports *ReportHandler, health http.HandlerFunc) {
	mux.HandleFunc("GET /health", health)

	mux.HandleFunc("POST /api/rewrites", rw.Detect)

	mux.HandleFunc("GET /api/reports", reports.List)
	mux.HandleFunc("GET /api/reports/{id}", reports.Get)
	mux.HandleFunc("DELETE /api/reports/{id}", reports.Delete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto API errors
func writeError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, report.ErrNotFound):
		errors.Write(w, errors.NotFound(err.Error()))
	case stderrors.Is(err, treediff.ErrRevision):
		errors.Write(w, errors.NotFound(err.Error()))
	case stderrors.Is(err, rewrites.ErrInvalidRewrites):
		errors.Write(w, errors.ValidationError(err.Error(), nil))
	default:
		errors.Write(w, err)
	}
}

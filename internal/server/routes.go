package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/metrics"
	"github.com/ternarybob/tcsync/internal/storage/badger"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 200
	healthTimeout      = 2 * time.Second
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/reports", s.handleReports) // GET ?limit=N
	mux.HandleFunc("/api/reports/", s.handleReport) // GET /{id}
	mux.HandleFunc("/api/jobs", s.handleJobs)       // GET housekeeping job statuses
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // POST /{name}/trigger

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return mux
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	QueueDepth    int64  `json:"queue_depth"`
	BatchRunning  bool   `json:"batch_running"`
	PortalSession bool   `json:"portal_session"`
	Error         string `json:"error,omitempty"`
}

// handleHealth reports queue reachability; an unreachable queue is a 503
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok", Version: common.GetVersion()}
	if s.app.Runner != nil {
		resp.BatchRunning = s.app.Runner.Running()
	}
	if s.app.Sessions != nil {
		resp.PortalSession = s.app.Sessions.LoggedIn()
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	depth, err := s.app.Queue.Len(ctx)
	if err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.QueueDepth = depth
	metrics.QueueDepth.Set(float64(depth))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": common.GetFullVersion()})
		},
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", defaultReportLimit, maxReportLimit)
			reports, err := s.app.ReportStorage.ListReports(r.Context(), limit)
			if err != nil {
				s.app.Logger.Error().Err(err).Msg("Failed to list batch reports")
				writeError(w, http.StatusInternalServerError, "failed to list reports")
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"reports": reports,
				"count":   len(reports),
			})
		},
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			id := pathID(r, "/api/reports/")
			if id == "" {
				writeError(w, http.StatusBadRequest, "report id required")
				return
			}
			report, err := s.app.ReportStorage.GetReport(r.Context(), id)
			if errors.Is(err, badger.ErrReportNotFound) {
				writeError(w, http.StatusNotFound, "report not found")
				return
			}
			if err != nil {
				s.app.Logger.Error().Err(err).Str("batch", id).Msg("Failed to load batch report")
				writeError(w, http.StatusInternalServerError, "failed to load report")
				return
			}
			writeJSON(w, http.StatusOK, report)
		},
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.app.Scheduler.GetAllJobStatuses())
		},
	})
}

// handleJobRoutes handles /api/jobs/{name}/trigger
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	handled := RouteByPathSuffix(w, r, "/api/jobs/", []PathSuffixRouter{
		{Suffix: "/trigger", Handler: s.triggerJob},
	})
	if !handled {
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) triggerJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := pathID(r, "/api/jobs/")
	if _, err := s.app.Scheduler.GetJobStatus(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := s.app.Scheduler.TriggerJob(name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, _ := s.app.Scheduler.GetJobStatus(name)
	writeJSON(w, http.StatusOK, status)
}

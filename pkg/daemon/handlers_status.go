package daemon

import (
	"net/http"
	"time"

	"github.com/hack-dev/hack/pkg/types"
)

type statusResponse struct {
	Status   string `json:"status"`
	UptimeMS int64  `json:"uptime_ms"`
	Version  string `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   "ok",
		UptimeMS: time.Since(s.startedAt).Milliseconds(),
		Version:  Version,
	})
}

type metricsResponse struct {
	RegisteredProjects int       `json:"registeredProjects"`
	ActiveJobs         int       `json:"activeJobs"`
	ActiveShells       int       `json:"activeShells"`
	ActiveStreams      int       `json:"activeStreams"`
	RuntimeOK          bool      `json:"runtimeOk"`
	RuntimeResetCount  int       `json:"runtimeResetCount"`
	LastRefreshAt      time.Time `json:"lastRefreshAt,omitempty"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{}

	if s.cfg.Registry != nil {
		if projects, err := s.cfg.Registry.List(); err == nil {
			resp.RegisteredProjects = len(projects)
		}
	}
	if s.cfg.Supervisor != nil {
		for _, j := range s.cfg.Supervisor.AllJobs() {
			if j.Status == types.JobQueued || j.Status == types.JobRunning {
				resp.ActiveJobs++
			}
		}
		resp.ActiveShells = s.cfg.Supervisor.ShellCount()
	}
	if s.cfg.Cache != nil {
		_, health := s.cfg.Cache.Snapshot(r.Context())
		resp.RuntimeOK = health.OK
		resp.RuntimeResetCount = health.ResetCount
		resp.LastRefreshAt = health.CheckedAt
	}

	s.streamsMu.Lock()
	resp.ActiveStreams = len(s.streams)
	s.streamsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

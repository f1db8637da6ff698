package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type createJobRequest struct {
	Runner     string            `json:"runner"`
	Command    []string          `json:"command"`
	WorkingDir string            `json:"workingDir"`
	Env        map[string]string `json:"env"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	job, err := s.cfg.Supervisor.CreateJob(projectID, req.Runner, req.Command, req.WorkingDir, req.Env)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, s.cfg.Supervisor.ListJobs(projectID))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	job, err := s.cfg.Supervisor.GetJob(jobID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := s.cfg.Supervisor.CancelJob(jobID); err != nil {
		writeAppErr(w, err)
		return
	}
	job, err := s.cfg.Supervisor.GetJob(jobID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// jobStreamBufferSize bounds how many queued frames a slow job-stream
// subscriber may accumulate before being dropped, per the shared-resource
// policy.
const jobStreamBufferSize = 256

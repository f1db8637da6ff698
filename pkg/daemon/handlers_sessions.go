package daemon

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Sessions.List())
}

type createSessionRequest struct {
	Name      string   `json:"name"`
	ProjectID string   `json:"projectId"`
	Command   []string `json:"command"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	sess, err := s.cfg.Sessions.Create(req.Name, req.ProjectID, req.Command)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.cfg.Sessions.Stop(name); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type execSessionRequest struct {
	Command []string `json:"command"`
}

func (s *Server) handleExecSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req execSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if err := s.cfg.Sessions.Exec(name, req.Command); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type inputSessionRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleInputSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req inputSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if err := s.cfg.Sessions.Input(name, req.Data); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/hack-dev/hack/pkg/projectview"
	"github.com/hack-dev/hack/pkg/runtimecache"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := projectview.Options{
		Filter:              q.Get("filter"),
		IncludeGlobal:       q.Get("include_global") == "true",
		IncludeUnregistered: q.Get("include_unregistered") == "true",
	}
	views, err := projectview.Build(r.Context(), s.cfg.Registry, s.cfg.Cache, opts)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type registerProjectRequest struct {
	Name      string `json:"name"`
	DevHost   string `json:"devHost"`
	RepoRoot  string `json:"repoRoot"`
	ConfigDir string `json:"configDir"`
}

func (s *Server) handleRegisterProject(w http.ResponseWriter, r *http.Request) {
	var req registerProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if _, err := s.cfg.Registry.Register(req.Name, req.DevHost, req.RepoRoot, req.ConfigDir); err != nil {
		writeAppErr(w, err)
		return
	}
	s.writeRegistryView(w, r)
}

type unregisterProjectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleUnregisterProject(w http.ResponseWriter, r *http.Request) {
	var req unregisterProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if err := s.cfg.Registry.Unregister(req.ID); err != nil {
		writeAppErr(w, err)
		return
	}
	s.writeRegistryView(w, r)
}

func (s *Server) handlePruneProjects(w http.ResponseWriter, r *http.Request) {
	isLive := func(composeProject string) bool {
		if s.cfg.Cache == nil {
			return false
		}
		snapshot, _ := s.cfg.Cache.Snapshot(r.Context())
		rp, ok := snapshot[composeProject]
		if !ok {
			return false
		}
		for _, containers := range rp.Services {
			if len(containers) > 0 {
				return true
			}
		}
		return false
	}
	if _, err := s.cfg.Registry.Prune(isLive); err != nil {
		writeAppErr(w, err)
		return
	}
	s.writeRegistryView(w, r)
}

func (s *Server) writeRegistryView(w http.ResponseWriter, r *http.Request) {
	views, err := projectview.Build(r.Context(), s.cfg.Registry, s.cfg.Cache, projectview.Options{IncludeGlobal: true})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	composeProject := q.Get("compose_project")
	if composeProject == "" {
		if project := q.Get("project"); project != "" {
			composeProject = runtimecache.ResolveComposeProjectName(project, q.Get("branch"))
		}
	}
	if composeProject == "" {
		writeError(w, http.StatusBadRequest, "missing_compose_project", "compose_project or project is required")
		return
	}
	items := s.cfg.Cache.PSPayload(r.Context(), composeProject)
	writeJSON(w, http.StatusOK, items)
}

package daemon

import (
	"encoding/json"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hack-dev/hack/pkg/events"
)

type createShellRequest struct {
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	WorkingDir string `json:"workingDir"`
	Program    string `json:"program"`
}

func (s *Server) handleCreateShell(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createShellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	shell, err := s.cfg.Supervisor.CreateShell(projectID, req.Cols, req.Rows, req.WorkingDir, req.Program)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shell)
}

func (s *Server) handleGetShell(w http.ResponseWriter, r *http.Request) {
	shellID := mux.Vars(r)["shellId"]
	shell, err := s.cfg.Supervisor.GetShell(shellID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shell)
}

// shellStreamBufferSize bounds how many queued output frames a slow shell
// subscriber may accumulate before being dropped.
const shellStreamBufferSize = 256

// handleShellStream implements the WS shell stream: GET
// .../shells/:shellId/stream. Unlike the job stream, this protocol is
// bidirectional: the client sends "input"/"resize"/"signal"/"close" frames
// (or raw non-JSON text, treated as input) while the server concurrently
// streams "output" frames and a single terminal "exit" frame.
func (s *Server) handleShellStream(w http.ResponseWriter, r *http.Request) {
	shellID := mux.Vars(r)["shellId"]

	shell, err := s.cfg.Supervisor.GetShell(shellID)
	if err != nil {
		writeAppErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub, err := s.cfg.Supervisor.SubscribeShell(shellID, shellStreamBufferSize)
	if err != nil {
		_ = writeFrame(conn, wsFrame{"type": "error", "code": "shell_not_found", "message": err.Error()})
		return
	}
	defer s.cfg.Supervisor.UnsubscribeShell(shellID, sub)

	as := s.registerStream(func() {
		_ = writeFrame(conn, wsFrame{"type": "exit", "reason": "daemon_shutdown"})
		_ = conn.Close()
	})
	defer s.unregisterStream(as)

	if err := writeFrame(conn, wsFrame{
		"type":    "ready",
		"shellId": shell.ID,
		"cols":    shell.Cols,
		"rows":    shell.Rows,
		"cwd":     shell.WorkingDir,
		"shell":   shell.Program,
		"status":  string(shell.Status),
	}); err != nil {
		return
	}

	done := make(chan struct{})
	go s.shellReadLoop(conn, shellID, done)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if streamShellEvent(conn, ev) {
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				return
			}
		case <-done:
			return
		}
	}
}

// shellReadLoop forwards client frames to the supervisor until the
// connection closes, then signals done.
func (s *Server) shellReadLoop(conn *websocket.Conn, shellID string, done chan<- struct{}) {
	defer close(done)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		frame, err := readFrame(conn)
		if err != nil {
			return
		}
		switch frameString(frame, "type") {
		case "raw":
			_ = s.cfg.Supervisor.WriteShell(shellID, []byte(frameString(frame, "data")))
		case "input":
			_ = s.cfg.Supervisor.WriteShell(shellID, []byte(frameString(frame, "data")))
		case "resize":
			_ = s.cfg.Supervisor.ResizeShell(shellID, frameInt(frame, "cols"), frameInt(frame, "rows"))
		case "signal":
			sig := frameString(frame, "signal")
			if n, ok := shellSignals[sig]; ok {
				_ = s.cfg.Supervisor.SignalShell(shellID, n)
			}
		case "close":
			_ = s.cfg.Supervisor.CloseShell(shellID, "client_closed")
			return
		}
	}
}

var shellSignals = map[string]syscall.Signal{
	"SIGINT":  syscall.SIGINT,
	"SIGTERM": syscall.SIGTERM,
	"SIGKILL": syscall.SIGKILL,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
}

// streamShellEvent writes ev as the appropriate frame and reports whether
// the shell exited.
func streamShellEvent(conn *websocket.Conn, ev events.Event) bool {
	switch ev.Kind {
	case events.ShellOutput:
		_ = writeFrame(conn, wsFrame{"type": "output", "data": ev.Data["data"]})
		return false
	case events.ShellExit:
		_ = writeFrame(conn, wsFrame{"type": "exit", "exitCode": ev.Data["exitCode"], "signal": ev.Data["signal"]})
		return true
	default:
		return false
	}
}

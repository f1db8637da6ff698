package daemon

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hack-dev/hack/pkg/events"
)

// handleJobStream implements the WS job stream: GET .../jobs/:jobId/stream.
// Wire protocol: client sends {type:"hello",logsFrom,
// eventsFrom}; server replies with "ready", then replays retained log bytes
// and events from those cursors, then streams live "log"/"event"/
// "heartbeat" frames until the job ends, at which point it sends a final
// "end" frame and closes.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if _, err := s.cfg.Supervisor.GetJob(jobID); err != nil {
		writeAppErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	hello, err := readFrame(conn)
	if err != nil {
		return
	}
	logsFrom := frameInt64(hello, "logsFrom")
	eventsFrom := frameInt64(hello, "eventsFrom")

	logBuf, sub, evicted, err := s.cfg.Supervisor.SubscribeJob(jobID, eventsFrom, jobStreamBufferSize)
	if err != nil {
		_ = writeFrame(conn, wsFrame{"type": "error", "code": "job_not_found", "message": err.Error()})
		return
	}
	defer s.cfg.Supervisor.UnsubscribeJob(jobID, sub)

	if evicted {
		_ = writeFrame(conn, wsFrame{"type": "error", "code": "cursor_evicted", "message": "requested eventsFrom has fallen out of the retained history"})
		return
	}

	job, _ := s.cfg.Supervisor.GetJob(jobID)
	as := s.registerStream(func() {
		_ = writeFrame(conn, wsFrame{"type": "end", "reason": "daemon_shutdown"})
		_ = conn.Close()
	})
	defer s.unregisterStream(as)

	if err := writeFrame(conn, wsFrame{
		"type":       "ready",
		"jobId":      job.ID,
		"logsOffset": job.LogsOffset,
		"eventsSeq":  job.EventsSeq,
	}); err != nil {
		return
	}

	if data, actualFrom := logBuf.Read(logsFrom, logBuf.Len()); len(data) > 0 {
		_ = writeFrame(conn, wsFrame{"type": "log", "data": string(data), "offset": actualFrom})
	}

	for ev := range sub {
		if streamJobEvent(conn, ev) {
			_ = writeFrame(conn, wsFrame{"type": "end"})
			return
		}
	}
}

// streamJobEvent writes ev as the appropriate frame and reports whether the
// job reached a terminal state.
func streamJobEvent(conn *websocket.Conn, ev events.Event) bool {
	switch ev.Kind {
	case events.JobStdout, events.JobStderr:
		_ = writeFrame(conn, wsFrame{"type": "log", "seq": ev.Seq, "kind": string(ev.Kind), "data": ev.Data["data"], "offset": ev.Data["endOffset"]})
		return false
	case events.JobHeartbeat:
		_ = writeFrame(conn, wsFrame{"type": "heartbeat", "logsOffset": ev.Data["logsOffset"], "eventsSeq": ev.Data["eventsSeq"]})
		return false
	case events.JobCompleted, events.JobFailed, events.JobCanceled:
		_ = writeFrame(conn, wsFrame{"type": "event", "seq": ev.Seq, "kind": string(ev.Kind), "data": ev.Data})
		return true
	default:
		_ = writeFrame(conn, wsFrame{"type": "event", "seq": ev.Seq, "kind": string(ev.Kind), "data": ev.Data})
		return false
	}
}

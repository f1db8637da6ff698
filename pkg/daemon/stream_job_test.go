package daemon

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHandleJobStreamRunsToCompletion(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	job, err := s.cfg.Supervisor.CreateJob("p1", "shell", []string{"sh", "-c", "echo hi"}, "", nil)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/projects/p1/jobs/" + job.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsFrame{"type": "hello", "logsFrom": 0, "eventsFrom": 0}))

	sawReady := false
	sawEnd := false
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 50 && !sawEnd; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f map[string]any
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f["type"] {
		case "ready":
			sawReady = true
		case "end":
			sawEnd = true
		}
	}

	require.True(t, sawReady, "expected a ready frame")
	require.True(t, sawEnd, "expected the stream to terminate with an end frame")
}

package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsIdleTimeout is the idle deadline on WebSocket reads: no
// client frame within this window closes the connection with reason
// "idle_timeout".
const wsIdleTimeout = 120 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is a loosely-typed server->client or client->server WebSocket
// message; fields beyond Type vary by frame kind.
type wsFrame map[string]any

func writeFrame(conn *websocket.Conn, frame wsFrame) error {
	return conn.WriteJSON(frame)
}

func readFrame(conn *websocket.Conn) (wsFrame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle_timeout"),
				time.Now().Add(time.Second))
		}
		return nil, err
	}
	var f wsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		// Non-JSON text frames are treated as raw input by the shell
		// protocol; callers that care forward the raw bytes themselves.
		return wsFrame{"type": "raw", "data": string(data)}, nil
	}
	return f, nil
}

func frameString(f wsFrame, key string) string {
	v, _ := f[key].(string)
	return v
}

func frameInt64(f wsFrame, key string) int64 {
	switch v := f[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func frameInt(f wsFrame, key string) int {
	return int(frameInt64(f, key))
}

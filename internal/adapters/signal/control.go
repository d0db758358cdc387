package signal

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// PingWSController serves /ws/ping/: every {"command":"PING"} is answered
// with a pong and anything else ends the connection.
type PingWSController struct {
	timing Timing
}

func NewPingWSController(t Timing) *PingWSController {
	return &PingWSController{timing: t}
}

type pongPayload struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

func (ctl *PingWSController) HandlePing(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.ping").Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.timing)
	ctx, cancel := context.WithCancel(ctx)
	go writePump(ctx, conn, ctl.timing)
	go ctl.readPump(cancel, conn)
}

func (ctl *PingWSController) readPump(cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		c.Close()
		cancel()
	}()
	setupRead(c, ctl.timing)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logReadError("ping", err)
			return
		}
		var env struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(data, &env); err != nil || env.Command != "PING" {
			c.CloseWithCode(websocket.CloseProtocolError, "expected PING")
			return
		}
		sendJSON(c, pongPayload{Command: "pong", Message: "PONG"})
	}
}

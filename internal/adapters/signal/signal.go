// Package signal runs the websocket side of the chat: the connection wrapper,
// its read/write pumps and the chat and ping endpoints.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/chat/internal/app"
	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Timing holds the per-connection limits shared by every endpoint.
type Timing struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func TimingFrom(cfg *config.Config) Timing {
	return Timing{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsSignalConn implements core.SignalConnection over a gorilla websocket.
// Frames are queued on send and written by the write pump only.
type WsSignalConn struct {
	conn      *websocket.Conn
	send      chan core.Frame
	writeWait time.Duration

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func newWsSignalConn(ws *websocket.Conn, t Timing) *WsSignalConn {
	return &WsSignalConn{
		conn:      ws,
		send:      make(chan core.Frame, t.SendBuffer),
		writeWait: t.WriteWait,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// SetCloseCode makes the next Close send a close frame with code first.
func (c *WsSignalConn) SetCloseCode(code int, reason string) {
	c.mu.Lock()
	if !c.closed {
		c.closeCode, c.closeReason = code, reason
	}
	c.mu.Unlock()
}

// Close marks the connection closed before the close frame is written;
// TrySend never waits on the network.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()

	if code != 0 {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); err != nil && !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("module", "signal").Int("code", code).Msg("write close frame")
		}
	}
	_ = c.conn.Close()
}

func (c *WsSignalConn) CloseWithCode(code int, reason string) {
	c.SetCloseCode(code, reason)
	c.Close()
}

// ChatWSController serves /ws/chat/:room_uuid/.
type ChatWSController struct {
	Orch   *app.Orchestrator
	timing Timing
}

func NewChatWSController(orch *app.Orchestrator, t Timing) *ChatWSController {
	return &ChatWSController{Orch: orch, timing: t}
}

// HandleChat authorizes the room before upgrading; a rejected caller gets
// 403 and no session is registered. ctx bounds the pumps.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context, user domain.User) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Int64("user", int64(user.ID)).Logger()

	roomUUID, err := uuid.Parse(c.Param("room_uuid"))
	if err != nil {
		logger.Info().Str("room_uuid", c.Param("room_uuid")).Msg("malformed room uuid")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	sess := ctl.Orch.NewSession(sid, user)
	if err := sess.Connect(c.Request.Context(), roomUUID); err != nil {
		logger.Info().Err(err).Str("room_uuid", roomUUID.String()).Msg("connection rejected")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		sess.Close()
		return
	}
	conn := newWsSignalConn(ws, ctl.timing)
	if err := sess.Join(conn); err != nil {
		logger.Error().Err(err).Msg("join")
		sess.Close()
		conn.Close()
		return
	}
	if err := sess.Serve(); err != nil {
		logger.Error().Err(err).Msg("serve")
		sess.Close()
		return
	}
	logger.Info().Int64("room", int64(sess.Room().ID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go writePump(ctx, conn, ctl.timing)
	go ctl.readPump(ctx, cancel, sess, conn)
}

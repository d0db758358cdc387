package signal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dkeye/chat/internal/app"
	"github.com/dkeye/chat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump is the only writer of data frames on c. It also keeps the peer
// alive with pings and says goodbye when ctx ends.
func writePump(ctx context.Context, c *WsSignalConn, t Timing) {
	ticker := time.NewTicker(t.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.CloseWithCode(websocket.CloseGoingAway, "server shutdown")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(t.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !isExpectedCloseError(err) {
					log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				}
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.WriteWait)); err != nil {
				if !isExpectedCloseError(err) {
					log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				}
				c.Close()
				return
			}
		}
	}
}

func setupRead(c *WsSignalConn, t Timing) {
	c.conn.SetReadLimit(t.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(t.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(t.PongWait))
	})
}

func (ctl *ChatWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *app.Session, c *WsSignalConn) {
	sid := string(sess.ID())
	defer func() {
		sess.Close()
		cancel()
		log.Info().Str("module", "signal").Str("sid", sid).Msg("readPump closing")
	}()
	setupRead(c, ctl.timing)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logReadError(sid, err)
			return
		}
		if err := sess.Handle(ctx, data); err != nil {
			// sess.Close leaves the room before the close frame goes out.
			if errors.Is(err, domain.ErrProtocolViolation) {
				c.SetCloseCode(websocket.ClosePolicyViolation, "unknown command")
			}
			return
		}
	}
}

func logReadError(sid string, err error) {
	if isExpectedCloseError(err) {
		log.Debug().Err(err).Str("module", "signal").Str("sid", sid).Msg("peer gone")
		return
	}
	log.Warn().Err(err).Str("module", "signal").Str("sid", sid).Msg("readPump read error")
}

func isExpectedCloseError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure)
}

func sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

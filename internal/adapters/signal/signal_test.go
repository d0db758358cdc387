package signal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/chat/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// wsPair returns the server end of a fresh websocket and its client end.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-accepted:
		return ws, client
	case <-time.After(5 * time.Second):
		t.Fatal("no server connection")
		return nil, nil
	}
}

func testTiming() Timing {
	return Timing{ReadLimit: 4096, PingPeriod: time.Minute, PongWait: 2 * time.Minute, WriteWait: 2 * time.Second, SendBuffer: 2}
}

func TestWsSignalConn_TrySend(t *testing.T) {
	r := require.New(t)
	server, _ := wsPair(t)
	c := newWsSignalConn(server, testTiming())

	r.NoError(c.TrySend(core.Frame("a")))
	r.NoError(c.TrySend(core.Frame("b")))
	r.ErrorIs(c.TrySend(core.Frame("c")), core.ErrBackpressure)

	c.Close()
	c.Close()
	r.ErrorIs(c.TrySend(core.Frame("d")), core.ErrConnClosed)
}

func TestWsSignalConn_CloseSendsCode(t *testing.T) {
	server, client := wsPair(t)
	c := newWsSignalConn(server, testTiming())
	c.SetCloseCode(websocket.ClosePolicyViolation, "unknown command")
	c.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestWsSignalConn_SlowPeerDoesNotBlockSenders(t *testing.T) {
	server, _ := wsPair(t)
	c := newWsSignalConn(server, testTiming())

	// The client never reads: this writer fills the socket buffers and then
	// blocks holding the websocket write lock, so the close frame waits out
	// the whole write deadline.
	payload := make([]byte, 1<<20)
	go func() {
		for server.WriteMessage(websocket.BinaryMessage, payload) == nil {
		}
	}()
	time.Sleep(300 * time.Millisecond)

	go c.CloseWithCode(websocket.ClosePolicyViolation, "unknown command")

	require.Eventually(t, func() bool {
		return errors.Is(c.TrySend(core.Frame("x")), core.ErrConnClosed)
	}, time.Second, 5*time.Millisecond)
}

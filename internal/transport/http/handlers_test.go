package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestStatusHandlers(t *testing.T) {
	r := require.New(t)
	gin.SetMode(gin.TestMode)
	reg := core.NewRoomRegistry()
	room := domain.Room{ID: 3, Name: "room-abc"}
	reg.Join(room, core.NewMemberSession("s1", domain.NewMember(domain.User{ID: 1}, room), nopConn{}))

	engine := gin.New()
	Register(engine, reg)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.Equal(http.StatusOK, w.Code)
	r.JSONEq(`{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	r.Equal(http.StatusOK, w.Code)
	var body RoomsResponse
	r.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	r.Equal([]core.RoomInfo{{ID: 3, Name: "room-abc", MemberCount: 1}}, body.Rooms)
}

func TestMembersHandler(t *testing.T) {
	r := require.New(t)
	gin.SetMode(gin.TestMode)
	reg := core.NewRoomRegistry()
	room := domain.Room{ID: 3, Name: "room-abc"}
	reg.Join(room, core.NewMemberSession("s2", domain.NewMember(domain.User{ID: 2, Email: "bob@acme.io"}, room), nopConn{}))
	reg.Join(room, core.NewMemberSession("s1", domain.NewMember(domain.User{ID: 1, Email: "alice@acme.io"}, room), nopConn{}))

	engine := gin.New()
	Register(engine, reg)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/3/members", nil))
	r.Equal(http.StatusOK, w.Code)
	r.JSONEq(`{"room":3,"members":[
		{"sid":"s1","id":1,"email":"alice@acme.io"},
		{"sid":"s2","id":2,"email":"bob@acme.io"}]}`, w.Body.String())

	for target, code := range map[string]int{
		"/api/rooms/99/members":  http.StatusNotFound,
		"/api/rooms/abc/members": http.StatusBadRequest,
		"/api/rooms/0/members":   http.StatusBadRequest,
	} {
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		r.Equal(code, w.Code, target)
	}
}

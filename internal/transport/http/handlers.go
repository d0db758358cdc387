// Package http exposes read-only service status over REST.
package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type RoomsResponse struct {
	Rooms []core.RoomInfo `json:"rooms"`
}

type MembersResponse struct {
	Room    domain.RoomID    `json:"room"`
	Members []core.MemberDTO `json:"members"`
}

func Register(r gin.IRouter, reg core.RoomRegistry) {
	r.GET("/healthz", handlerHealth)
	r.GET("/api/rooms", func(c *gin.Context) { handlerRooms(c, reg) })
	r.GET("/api/rooms/:id/members", func(c *gin.Context) { handlerMembers(c, reg) })
}

func handlerHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func handlerRooms(c *gin.Context, reg core.RoomRegistry) {
	c.JSON(http.StatusOK, RoomsResponse{Rooms: reg.List()})
}

// handlerMembers lists the sessions currently joined to a live room.
func handlerMembers(c *gin.Context, reg core.RoomRegistry) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	members := reg.MembersSnapshot(domain.RoomID(id))
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not live"})
		return
	}
	c.JSON(http.StatusOK, MembersResponse{Room: domain.RoomID(id), Members: members})
}

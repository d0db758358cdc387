package http

import (
	"context"
	"net/http"

	"github.com/dkeye/chat/internal/adapters/signal"
	"github.com/dkeye/chat/internal/app"
	"github.com/dkeye/chat/internal/config"
	status "github.com/dkeye/chat/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, authn Authenticator) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	timing := signal.TimingFrom(cfg)
	chat := signal.NewChatWSController(orch, timing)
	ping := signal.NewPingWSController(timing)

	ws := r.Group("/ws")
	ws.Use(AuthGateway(authn))
	ws.GET("/chat/:room_uuid/", func(c *gin.Context) {
		user := IdentityFrom(c)
		if user.IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Info().Str("module", "adapters.http").Int64("user", int64(user.ID)).Str("room_uuid", c.Param("room_uuid")).Msg("ws chat endpoint hit")
		chat.HandleChat(ctx, c, user)
	})
	ws.GET("/ping/", func(c *gin.Context) {
		ping.HandlePing(ctx, c)
	})

	status.Register(r, orch.Registry)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

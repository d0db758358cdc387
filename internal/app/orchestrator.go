package app

import (
	"encoding/json"

	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Orchestrator owns the shared collaborators of every chat session.
type Orchestrator struct {
	Registry core.RoomRegistry
	Messages core.MessageStore
	Rooms    *Rooms
	Policy   Policy
	Limiter  *RateLimiter
	Chat     config.Chat

	validate *validator.Validate
}

func NewOrchestrator(reg core.RoomRegistry, messages core.MessageStore, rooms *Rooms, policy Policy, chat config.Chat) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Messages: messages,
		Rooms:    rooms,
		Policy:   policy,
		Limiter:  NewRateLimiter(chat.RateLimit.Messages, chat.RateLimit.Interval),
		Chat:     chat,
		validate: validator.New(),
	}
}

// NewSession starts the lifecycle of one connection for user.
func (o *Orchestrator) NewSession(sid core.SessionID, user domain.User) *Session {
	return &Session{id: sid, user: user, o: o}
}

func (o *Orchestrator) encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode envelope")
		return nil, false
	}
	return b, true
}

// publish fans frame out to the room and applies the backpressure policy.
func (o *Orchestrator) publish(room domain.Room, frame core.Frame) core.PublishResult {
	res := o.Registry.Broadcast(room.ID, frame)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(slow.ID())).Int64("room", int64(room.ID)).Msg("kicking slow member")
			slow.Signal().Close()
		case NoAction:
		}
	}
	return res
}

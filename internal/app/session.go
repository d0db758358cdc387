package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoined
	StateServing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateServing:
		return "serving"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

var ErrInvalidState = errors.New("invalid session state")

// Session is the lifecycle of one chat connection:
//
//	Connecting -> Joined -> Serving -> Closed
//	Connecting -> Closed
//
// Connect authorizes the room, Join registers the transport, Serve accepts
// commands and Close leaves the room exactly once.
type Session struct {
	id   core.SessionID
	user domain.User
	o    *Orchestrator

	state atomic.Int32
	room  domain.Room
	conn  core.SignalConnection
	sub   core.Subscription

	closeOnce sync.Once
}

func (s *Session) ID() core.SessionID  { return s.id }
func (s *Session) User() domain.User   { return s.user }
func (s *Session) Room() domain.Room   { return s.room }
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Connect resolves the requested room and checks the caller may join it.
// Any failure moves the session to Closed.
func (s *Session) Connect(ctx context.Context, roomUUID uuid.UUID) error {
	if s.State() != StateConnecting {
		return fmt.Errorf("connect: %w: %s", ErrInvalidState, s.State())
	}
	if s.user.IsAnonymous() {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("connect: %w", domain.ErrAuthRejected)
	}
	room, err := s.o.Rooms.ByUUID(ctx, roomUUID)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("connect: %w", err)
	}
	if s.o.Chat.EnforceMembership {
		ok, err := s.o.Rooms.IsMember(ctx, room.ID, s.user.ID)
		if err != nil {
			s.state.Store(int32(StateClosed))
			return fmt.Errorf("connect: %w", err)
		}
		if !ok {
			s.state.Store(int32(StateClosed))
			return fmt.Errorf("connect: not a member: %w", domain.ErrRoomNotFound)
		}
	}
	s.room = room
	return nil
}

// Join registers conn with the room registry.
func (s *Session) Join(conn core.SignalConnection) error {
	if s.State() != StateConnecting || s.room.ID == 0 {
		return fmt.Errorf("join: %w: %s", ErrInvalidState, s.State())
	}
	s.conn = conn
	meta := domain.NewMember(s.user, s.room)
	s.sub = s.o.Registry.Join(s.room, core.NewMemberSession(s.id, meta, conn))
	s.state.Store(int32(StateJoined))
	log.Info().Str("module", "app.session").Str("sid", string(s.id)).Int64("room", int64(s.room.ID)).Int64("user", int64(s.user.ID)).Msg("joined room")
	return nil
}

// Serve marks the session ready to handle commands.
func (s *Session) Serve() error {
	if !s.state.CompareAndSwap(int32(StateJoined), int32(StateServing)) {
		return fmt.Errorf("serve: %w: %s", ErrInvalidState, s.State())
	}
	return nil
}

// Handle executes one inbound frame. It returns domain.ErrProtocolViolation
// when the frame is not a known command; the caller must then Close.
func (s *Session) Handle(ctx context.Context, data []byte) error {
	if s.State() != StateServing {
		return fmt.Errorf("handle: %w: %s", ErrInvalidState, s.State())
	}
	switch c := ParseCommand(data).(type) {
	case FetchMessages:
		s.fetchMessages(ctx)
	case NewMessage:
		s.newMessage(ctx, c.Body)
	case UnknownCommand:
		log.Warn().Str("module", "app.session").Str("sid", string(s.id)).Str("command", c.Name).Msg("unknown command")
		return fmt.Errorf("command %q: %w", c.Name, domain.ErrProtocolViolation)
	}
	return nil
}

// Close leaves the room and closes the transport. Safe to call many times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := SessionState(s.state.Swap(int32(StateClosed)))
		if prev == StateJoined || prev == StateServing {
			s.o.Registry.Leave(s.sub)
			log.Info().Str("module", "app.session").Str("sid", string(s.id)).Int64("room", int64(s.room.ID)).Msg("left room")
		}
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *Session) sendError(code string) {
	s.send(errorEnvelope{Command: cmdError, Error: code})
}

func (s *Session) send(v any) {
	frame, ok := s.o.encode(v)
	if !ok {
		return
	}
	if err := s.conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("sid", string(s.id)).Msg("reply dropped")
	}
}

func (s *Session) fetchMessages(ctx context.Context) {
	msgs, err := s.o.Messages.RecentMessages(ctx, s.room.ID, s.o.Chat.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(s.id)).Int64("room", int64(s.room.ID)).Msg("history unavailable")
		s.sendError(ErrCodeHistoryUnavailable)
		return
	}

	direct := make(map[domain.UserID]*domain.Room)
	out := make([]MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		chatRoom, seen := direct[m.Author.ID]
		if !seen {
			chatRoom, err = s.o.Rooms.DirectRoom(ctx, m.Author, s.user)
			if err != nil {
				log.Warn().Err(err).Str("module", "app.session").Str("sid", string(s.id)).Msg("direct room lookup")
				chatRoom = nil
			}
			direct[m.Author.ID] = chatRoom
		}
		out = append(out, messagePayload(m, s.room, chatRoom))
	}
	s.send(fetchedEnvelope{Command: cmdFetched, Messages: out, Username: s.user.Email})
}

func (s *Session) newMessage(ctx context.Context, body string) {
	rule := "required,max=" + strconv.Itoa(s.o.Chat.MaxMessageLength)
	if err := s.o.validate.Var(body, rule); err != nil {
		s.sendError(ErrCodeInvalidMessage)
		return
	}
	if !s.o.Limiter.Allow(s.user.ID) {
		s.sendError(ErrCodeRateLimited)
		return
	}

	err := s.o.Registry.Serialize(s.room.ID, func() error {
		msg, err := s.o.Messages.CreateMessage(ctx, s.room, s.user, body)
		if err != nil {
			return err
		}
		// the viewer of a fresh message is its author
		frame, ok := s.o.encode(newMessageEnvelope{Command: cmdNewMessage, Message: messagePayload(msg, s.room, nil)})
		if !ok {
			return nil
		}
		res := s.o.publish(s.room, frame)
		log.Debug().Str("module", "app.session").Str("sid", string(s.id)).Int64("message", int64(msg.ID)).Int("sent_to", res.SendTo).Msg("message published")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(s.id)).Int64("room", int64(s.room.ID)).Msg("message not saved")
		s.sendError(ErrCodeMessageNotSaved)
	}
}

// Package session runs one goroutine per room. Every mutating command for a
// room flows through its inbox, which gives the state-machine guards a single
// serial order; independent rooms proceed concurrently.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pokerplan/planning-poker-backend/internal/engine"
	"github.com/pokerplan/planning-poker-backend/internal/protocol"
)

type Msg interface{ isSessionMsg() }

// Join registers a connection and its asserted identity. The joining
// connection gets the full snapshot; everyone else gets user-joined.
type Join struct {
	ConnID   string
	UserID   string
	UserName string
	Outbox   chan protocol.ServerEvent // where this connection receives events
}

func (Join) isSessionMsg() {}

type Leave struct{ ConnID string }

func (Leave) isSessionMsg() {}

type FromClient struct {
	ConnID string
	Cmd    engine.Command
}

func (FromClient) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

// View reflects internal state without data races; used by the REST read and
// by tests.
type View struct {
	NumClients int
	EmptySince time.Time // zero while at least one connection is registered
	Closed     bool      // the session has shut down; State is stale
	State      engine.State
}

type client struct {
	userID string
	outbox chan protocol.ServerEvent
}

type Session struct {
	inbox      chan Msg
	state      engine.State
	clients    map[string]client // keyed by ConnID
	emptySince time.Time
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, initial engine.State, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:      make(chan Msg, 64),
		state:      initial,
		clients:    make(map[string]client),
		emptySince: time.Now(),
		log:        log.With(zap.String("roomId", initial.RoomID)),
		ctx:        ctx,
		cancel:     cancel,
	}

	go s.loop()
	return s
}

// Inbox exposes the message channel to the WS layer and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)

			case Leave:
				s.handleLeave(msg)

			case FromClient:
				s.handleCommand(msg)

			case GetView:
				msg.Reply <- View{
					NumClients: len(s.clients),
					EmptySince: s.emptySince,
					State:      s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	cmd := engine.Command{Type: engine.CmdJoin, UserID: msg.UserID, UserName: msg.UserName}
	events, newState, err := engine.Apply(s.state, cmd)
	if err != nil {
		// Rejected join: the connection gets the error and nothing else.
		msg.Outbox <- protocol.ErrorEvent{Message: err.Error()}
		close(msg.Outbox)
		return
	}

	s.state = newState
	s.clients[msg.ConnID] = client{userID: msg.UserID, outbox: msg.Outbox}
	s.emptySince = time.Time{}

	s.deliver(msg.ConnID, protocol.Snapshot(s.state))
	s.broadcastExcept(msg.ConnID, events)
	s.log.Debug("user joined", zap.String("userId", msg.UserID))
}

func (s *Session) handleLeave(msg Leave) {
	cl, ok := s.clients[msg.ConnID]
	if !ok {
		return
	}
	delete(s.clients, msg.ConnID)
	if len(s.clients) == 0 {
		s.emptySince = time.Now()
	}

	for _, other := range s.clients {
		if other.userID == cl.userID {
			// A second tab still holds this identity; the user stays.
			return
		}
	}

	events, newState, err := engine.Apply(s.state, engine.Command{Type: engine.CmdLeave, UserID: cl.userID})
	if err != nil {
		s.log.Warn("leave rejected", zap.String("userId", cl.userID), zap.Error(err))
		return
	}
	s.state = newState
	s.broadcastExcept(msg.ConnID, events)
	s.log.Debug("user left", zap.String("userId", cl.userID))
}

func (s *Session) handleCommand(msg FromClient) {
	cl, ok := s.clients[msg.ConnID]
	if !ok {
		// Connection never joined; nothing to answer on.
		return
	}

	cmd := msg.Cmd
	if cmd.UserID == "" {
		cmd.UserID = cl.userID
	}
	if cmd.Type == engine.CmdCreateActivity && cmd.ActivityID == "" {
		cmd.ActivityID = uuid.NewString()
	}

	events, newState, err := engine.Apply(s.state, cmd)
	if err != nil {
		// Rejections go to the requester only and never touch shared state.
		s.deliver(msg.ConnID, protocol.ErrorEvent{Message: err.Error()})
		return
	}

	s.state = newState
	s.broadcastExcept("", events)
}

func (s *Session) broadcastExcept(connID string, events []engine.Event) {
	for _, ev := range events {
		wire, err := protocol.FromEngineEvent(ev)
		if err != nil {
			s.log.Error("unmappable engine event", zap.String("event", string(ev.Type)), zap.Error(err))
			continue
		}
		for id := range s.clients {
			if id == connID {
				continue
			}
			s.deliver(id, wire)
		}
	}
}

// deliver sends one event to one connection, dropping the client if its
// outbox is full.
func (s *Session) deliver(connID string, ev protocol.ServerEvent) {
	cl, ok := s.clients[connID]
	if !ok {
		return
	}
	select {
	case cl.outbox <- ev:
	default:
		// Client is slow/full - drop them.
		close(cl.outbox)
		delete(s.clients, connID)
		if len(s.clients) == 0 {
			s.emptySince = time.Now()
		}
		s.log.Warn("dropped slow client", zap.String("userId", cl.userID))
	}
}

func (s *Session) shutdown() {
	for id, cl := range s.clients {
		close(cl.outbox)
		delete(s.clients, id)
	}
	s.cancel()
	go s.drain()
}

// drain keeps the inbox serviced after the loop exits. A caller that grabbed
// the session pointer just before shutdown must not hang: a late Join gets
// its outbox closed, a late GetView gets a Closed view, everything else is
// discarded.
func (s *Session) drain() {
	for m := range s.inbox {
		switch msg := m.(type) {
		case Join:
			close(msg.Outbox)
		case GetView:
			msg.Reply <- View{Closed: true}
		}
	}
}

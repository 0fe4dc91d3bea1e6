// Package hub owns the room registry. All lookups and lifecycle changes go
// through a single goroutine; rooms left empty past a TTL are swept away.
package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pokerplan/planning-poker-backend/internal/engine"
	"github.com/pokerplan/planning-poker-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom registers a new room session. Reply receives nil if the id is
// already taken.
type CreateRoom struct {
	RoomID string
	State  engine.State
	Reply  chan *session.Session
}

type GetRoom struct {
	RoomID string
	Reply  chan *session.Session // nil when unknown
}

type RemoveRoom struct {
	RoomID string
}

type ShutdownHub struct{}

type sweep struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}
func (sweep) isHubMsg()       {}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*session.Session
	emptyTTL time.Duration
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

const sweepInterval = time.Minute

// New starts the hub. emptyTTL bounds how long a room with zero connections
// stays resident; zero disables sweeping.
func New(parent context.Context, emptyTTL time.Duration, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*session.Session),
		emptyTTL: emptyTTL,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	if emptyTTL > 0 {
		go h.tick()
	}
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) tick() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-t.C:
			select {
			case h.inbox <- sweep{}:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.RoomID] != nil {
					msg.Reply <- nil
					break
				}
				s := session.New(h.ctx, msg.State, h.log)
				h.rooms[msg.RoomID] = s
				h.log.Info("room created", zap.String("roomId", msg.RoomID))
				msg.Reply <- s

			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // may be nil

			case RemoveRoom:
				if s := h.rooms[msg.RoomID]; s != nil {
					s.Inbox() <- session.Shutdown{}
					delete(h.rooms, msg.RoomID)
				}

			case sweep:
				h.sweepEmpty()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// sweepEmpty shuts down rooms that have had zero connections for longer than
// the TTL. Rooms with members are never expired.
func (h *Hub) sweepEmpty() {
	cutoff := time.Now().Add(-h.emptyTTL)
	for id, s := range h.rooms {
		reply := make(chan session.View, 1)
		s.Inbox() <- session.GetView{Reply: reply}
		v := <-reply
		if v.Closed {
			delete(h.rooms, id)
			continue
		}
		if v.NumClients == 0 && !v.EmptySince.IsZero() && v.EmptySince.Before(cutoff) {
			s.Inbox() <- session.Shutdown{}
			delete(h.rooms, id)
			h.log.Info("expired empty room", zap.String("roomId", id))
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.rooms {
		s.Inbox() <- session.Shutdown{}
		delete(h.rooms, id)
	}
	h.cancel()
}

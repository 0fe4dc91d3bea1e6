package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pokerplan/planning-poker-backend/internal/hub"
	"github.com/pokerplan/planning-poker-backend/internal/protocol"
	"github.com/pokerplan/planning-poker-backend/internal/session"
)

const writeTimeout = 3 * time.Second

// Handler upgrades the connection and bridges it to a room session. The
// first message must be join-room; everything after is decoded into engine
// commands and forwarded to the session inbox.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		outbox := make(chan protocol.ServerEvent, 16)

		// Writer goroutine: the only place events are written after the
		// join, so per-connection delivery stays in order.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, outbox, log)

		var sess *session.Session
		defer func() {
			if sess != nil {
				sess.Inbox() <- session.Leave{ConnID: connID}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			m, err := protocol.DecodeClientMessage(data)
			if err != nil {
				if sess == nil {
					writeEvent(r.Context(), conn, protocol.ErrorEvent{Message: "invalid message"})
				} else {
					log.Debug("dropping undecodable message", zap.Error(err))
				}
				continue
			}

			if sess == nil {
				if m.Type != protocol.MsgJoinRoom {
					writeEvent(r.Context(), conn, protocol.ErrorEvent{Message: "join a room first"})
					continue
				}
				target := lookupRoom(h, m.RoomID)
				if target == nil {
					writeEvent(r.Context(), conn, protocol.ErrorEvent{Message: "room not found"})
					return
				}
				sess = target
				sess.Inbox() <- session.Join{
					ConnID:   connID,
					UserID:   m.UserID,
					UserName: m.UserName,
					Outbox:   outbox,
				}
				continue
			}

			if m.Type == protocol.MsgJoinRoom {
				// Already joined on this connection; a rejoin needs a fresh
				// connection so the snapshot replaces local state wholesale.
				continue
			}

			cmd, err := m.ToCommand()
			if err != nil {
				log.Debug("rejected client message", zap.String("type", m.Type), zap.Error(err))
				continue
			}
			sess.Inbox() <- session.FromClient{ConnID: connID, Cmd: cmd}
		}
	}
}

func lookupRoom(h *hub.Hub, roomID string) *session.Session {
	if roomID == "" {
		return nil
	}
	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.GetRoom{RoomID: roomID, Reply: reply}
	return <-reply
}

func writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan protocol.ServerEvent, log *zap.Logger) {
	for ev := range outbox {
		if err := writeEvent(ctx, conn, ev); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("write failed", zap.Error(err))
			}
			return
		}
	}
	// Outbox closed by the session: the room is gone or this client was
	// dropped. Terminal for the connection either way.
	conn.Close(websocket.StatusGoingAway, "room closed")
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev protocol.ServerEvent) error {
	payload, err := protocol.EncodeServerEvent(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

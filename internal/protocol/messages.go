// Package protocol defines the wire messages exchanged over the room event
// channel: one closed set of client commands, one closed set of server
// events. Unrecognized tags are rejected on decode in both directions.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pokerplan/planning-poker-backend/internal/engine"
)

var ErrUnknownMessageType = errors.New("unknown message type")
var ErrMissingVote = errors.New("vote value is required")

// Client -> server message tags.
const (
	MsgJoinRoom       = "join-room"
	MsgCreateActivity = "create-activity"
	MsgStartVoting    = "start-voting"
	MsgVote           = "vote"
	MsgRevealResults  = "reveal-results"
	MsgRemoveActivity = "remove-activity"
)

type ClientMessage struct {
	Type        string            `json:"type"`
	RoomID      string            `json:"roomId,omitempty"`
	UserID      string            `json:"userId,omitempty"`
	UserName    string            `json:"userName,omitempty"`
	ActivityID  string            `json:"activityId,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Vote        *engine.VoteValue `json:"vote,omitempty"`
}

func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	return m, nil
}

// ToCommand maps a wire message onto an engine command. The switch is the
// single place a client tag is interpreted; anything unlisted is an error.
func (m ClientMessage) ToCommand() (engine.Command, error) {
	switch m.Type {
	case MsgJoinRoom:
		return engine.Command{Type: engine.CmdJoin, UserID: m.UserID, UserName: m.UserName}, nil
	case MsgCreateActivity:
		return engine.Command{
			Type:        engine.CmdCreateActivity,
			UserID:      m.UserID,
			Title:       m.Title,
			Description: m.Description,
		}, nil
	case MsgStartVoting:
		return engine.Command{Type: engine.CmdStartVoting, UserID: m.UserID, ActivityID: m.ActivityID}, nil
	case MsgVote:
		if m.Vote == nil {
			return engine.Command{}, ErrMissingVote
		}
		return engine.Command{
			Type:       engine.CmdVote,
			UserID:     m.UserID,
			ActivityID: m.ActivityID,
			Vote:       *m.Vote,
		}, nil
	case MsgRevealResults:
		return engine.Command{Type: engine.CmdRevealResults, UserID: m.UserID, ActivityID: m.ActivityID}, nil
	case MsgRemoveActivity:
		return engine.Command{Type: engine.CmdRemoveActivity, UserID: m.UserID, ActivityID: m.ActivityID}, nil
	default:
		return engine.Command{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}

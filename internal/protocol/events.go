package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pokerplan/planning-poker-backend/internal/engine"
)

// Server -> client event tags.
const (
	EvtRoomState       = "room-state"
	EvtUserJoined      = "user-joined"
	EvtUserLeft        = "user-left"
	EvtActivityCreated = "activity-created"
	EvtVotingStarted   = "voting-started"
	EvtVoteReceived    = "vote-received"
	EvtAllVoted        = "all-voted"
	EvtResultsRevealed = "results-revealed"
	EvtActivityRemoved = "activity-removed"
	EvtError           = "error"
)

// ServerEvent is the closed set of payloads the gateway sends. Each variant
// corresponds to exactly one wire tag.
type ServerEvent interface {
	EventType() string
}

type RoomInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

// RoomState is the full snapshot sent once to a joining connection.
type RoomState struct {
	Room              RoomInfo          `json:"room"`
	Users             []engine.User     `json:"users"`
	Activities        []engine.Activity `json:"activities"`
	CurrentActivityID *string           `json:"currentActivityId"`
}

type UserJoined struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeft struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type ActivityCreated struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      engine.Status `json:"status"`
}

type VotingStarted struct {
	ActivityID string          `json:"activityId"`
	Activity   engine.Activity `json:"activity"`
}

// VoteReceived signals presence only. The vote value never travels in this
// event.
type VoteReceived struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	HasVoted   bool   `json:"hasVoted"`
}

type AllVoted struct {
	ActivityID string `json:"activityId"`
}

type ResultsRevealed struct {
	ActivityID string                 `json:"activityId"`
	Result     *float64               `json:"result"`
	Votes      []engine.DisclosedVote `json:"votes"`
}

type ActivityRemoved struct {
	ActivityID string `json:"activityId"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (RoomState) EventType() string       { return EvtRoomState }
func (UserJoined) EventType() string      { return EvtUserJoined }
func (UserLeft) EventType() string        { return EvtUserLeft }
func (ActivityCreated) EventType() string { return EvtActivityCreated }
func (VotingStarted) EventType() string   { return EvtVotingStarted }
func (VoteReceived) EventType() string    { return EvtVoteReceived }
func (AllVoted) EventType() string        { return EvtAllVoted }
func (ResultsRevealed) EventType() string { return EvtResultsRevealed }
func (ActivityRemoved) EventType() string { return EvtActivityRemoved }
func (ErrorEvent) EventType() string      { return EvtError }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.EventType(), err)
	}
	return json.Marshal(envelope{Type: ev.EventType(), Data: data})
}

// DecodeServerEvent parses an envelope into its concrete variant. Unknown
// tags are rejected so a reconciler never silently skips an event kind it
// does not handle.
func DecodeServerEvent(raw []byte) (ServerEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode server event: %w", err)
	}

	switch env.Type {
	case EvtRoomState:
		var p RoomState
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtUserJoined:
		var p UserJoined
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtUserLeft:
		var p UserLeft
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtActivityCreated:
		var p ActivityCreated
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtVotingStarted:
		var p VotingStarted
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtVoteReceived:
		var p VoteReceived
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtAllVoted:
		var p AllVoted
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtResultsRevealed:
		var p ResultsRevealed
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtActivityRemoved:
		var p ActivityRemoved
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EvtError:
		var p ErrorEvent
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

func unmarshalPayload(env envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}

// Snapshot builds the room-state event for a joining connection.
func Snapshot(s engine.State) RoomState {
	var current *string
	if s.CurrentActivityID != "" {
		id := s.CurrentActivityID
		current = &id
	}
	users := s.Users
	if users == nil {
		users = []engine.User{}
	}
	activities := s.Activities
	if activities == nil {
		activities = []engine.Activity{}
	}
	return RoomState{
		Room:              RoomInfo{ID: s.RoomID, Name: s.RoomName, OwnerID: s.OwnerID},
		Users:             users,
		Activities:        activities,
		CurrentActivityID: current,
	}
}

// FromEngineEvent converts an engine event into its wire form.
func FromEngineEvent(ev engine.Event) (ServerEvent, error) {
	switch ev.Type {
	case engine.EvtUserJoined:
		return UserJoined{UserID: ev.UserID, UserName: ev.UserName}, nil
	case engine.EvtUserLeft:
		return UserLeft{UserID: ev.UserID, UserName: ev.UserName}, nil
	case engine.EvtActivityCreated:
		return ActivityCreated{
			ID:          ev.Activity.ID,
			Title:       ev.Activity.Title,
			Description: ev.Activity.Description,
			Status:      ev.Activity.Status,
		}, nil
	case engine.EvtVotingStarted:
		return VotingStarted{ActivityID: ev.ActivityID, Activity: *ev.Activity}, nil
	case engine.EvtVoteReceived:
		return VoteReceived{
			ActivityID: ev.ActivityID,
			UserID:     ev.UserID,
			UserName:   ev.UserName,
			HasVoted:   ev.HasVoted,
		}, nil
	case engine.EvtAllVoted:
		return AllVoted{ActivityID: ev.ActivityID}, nil
	case engine.EvtResultsRevealed:
		votes := ev.Votes
		if votes == nil {
			votes = []engine.DisclosedVote{}
		}
		return ResultsRevealed{ActivityID: ev.ActivityID, Result: ev.Result, Votes: votes}, nil
	case engine.EvtActivityRemoved:
		return ActivityRemoved{ActivityID: ev.ActivityID}, nil
	default:
		return nil, fmt.Errorf("%w: engine event %q", ErrUnknownMessageType, ev.Type)
	}
}

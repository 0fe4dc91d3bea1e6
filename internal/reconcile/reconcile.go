// Package reconcile folds the ordered server event stream into an immutable
// client-side snapshot. Apply is pure: presentation code reacts to the
// returned snapshot and never mutates shared state directly.
package reconcile

import (
	"github.com/pokerplan/planning-poker-backend/internal/engine"
	"github.com/pokerplan/planning-poker-backend/internal/protocol"
)

// Snapshot is one client's view of the room. Events must be applied in
// delivery order; every handler tolerates duplicate delivery of the same
// event.
type Snapshot struct {
	Room              protocol.RoomInfo
	Users             []engine.User
	Activities        []engine.Activity
	CurrentActivityID string // "" when no round is active
	VotedUserIDs      map[string]bool
	AllVoted          bool
	Notice            string // transient, set by error events only
}

func NewSnapshot() Snapshot {
	return Snapshot{VotedUserIDs: map[string]bool{}}
}

// Apply produces the next snapshot for one event. The input snapshot is
// never modified.
func Apply(s Snapshot, ev protocol.ServerEvent) Snapshot {
	// A notice only survives the event that raised it.
	s.Notice = ""

	switch e := ev.(type) {
	case protocol.RoomState:
		return applyRoomState(e)

	case protocol.UserJoined:
		if userIndex(s.Users, e.UserID) >= 0 {
			return s
		}
		s.Users = append(cloneUsers(s.Users), engine.User{ID: e.UserID, Name: e.UserName})
		return s

	case protocol.UserLeft:
		i := userIndex(s.Users, e.UserID)
		if i < 0 {
			return s
		}
		s.Users = append(cloneUsers(s.Users[:i]), s.Users[i+1:]...)
		return s

	case protocol.ActivityCreated:
		if activityIndex(s.Activities, e.ID) >= 0 {
			return s
		}
		s.Activities = append(cloneActivities(s.Activities), engine.Activity{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Status:      e.Status,
		})
		return s

	case protocol.VotingStarted:
		i := activityIndex(s.Activities, e.ActivityID)
		if i < 0 {
			return s
		}
		s.Activities = cloneActivities(s.Activities)
		s.Activities[i].Status = engine.StatusVoting
		s.CurrentActivityID = e.ActivityID
		s.VotedUserIDs = map[string]bool{}
		s.AllVoted = false
		return s

	case protocol.VoteReceived:
		if e.ActivityID != s.CurrentActivityID || !e.HasVoted {
			return s
		}
		voted := cloneVoted(s.VotedUserIDs)
		voted[e.UserID] = true
		s.VotedUserIDs = voted
		return s

	case protocol.AllVoted:
		if e.ActivityID != s.CurrentActivityID {
			return s
		}
		s.AllVoted = true
		return s

	case protocol.ResultsRevealed:
		i := activityIndex(s.Activities, e.ActivityID)
		if i < 0 {
			return s
		}
		s.Activities = cloneActivities(s.Activities)
		s.Activities[i].Status = engine.StatusCompleted
		s.Activities[i].Result = e.Result
		s.Activities[i].Votes = e.Votes
		if s.CurrentActivityID == e.ActivityID {
			s.CurrentActivityID = ""
		}
		s.VotedUserIDs = map[string]bool{}
		s.AllVoted = false
		return s

	case protocol.ActivityRemoved:
		i := activityIndex(s.Activities, e.ActivityID)
		if i < 0 {
			return s
		}
		s.Activities = append(cloneActivities(s.Activities[:i]), s.Activities[i+1:]...)
		if s.CurrentActivityID == e.ActivityID {
			s.CurrentActivityID = ""
		}
		return s

	case protocol.ErrorEvent:
		s.Notice = e.Message
		return s

	default:
		return s
	}
}

// Replay folds an event log over the zero snapshot. Useful in tests: the
// same log always yields the same snapshot.
func Replay(events []protocol.ServerEvent) Snapshot {
	s := NewSnapshot()
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

func applyRoomState(e protocol.RoomState) Snapshot {
	// Wholesale replacement: any buffered delta state from before a
	// reconnect is discarded.
	s := NewSnapshot()
	s.Room = e.Room
	s.Users = cloneUsers(e.Users)
	s.Activities = cloneActivities(e.Activities)
	if e.CurrentActivityID != nil {
		s.CurrentActivityID = *e.CurrentActivityID
	}
	return s
}

func userIndex(users []engine.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func activityIndex(activities []engine.Activity, id string) int {
	for i, a := range activities {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func cloneUsers(users []engine.User) []engine.User {
	out := make([]engine.User, len(users))
	copy(out, users)
	return out
}

func cloneActivities(activities []engine.Activity) []engine.Activity {
	out := make([]engine.Activity, len(activities))
	copy(out, activities)
	return out
}

func cloneVoted(voted map[string]bool) map[string]bool {
	out := make(map[string]bool, len(voted)+1)
	for id := range voted {
		out[id] = true
	}
	return out
}

package engine

import (
	"errors"
	"strings"
)

var ErrNotOwner = errors.New("only the room owner can do that")
var ErrNotInRoom = errors.New("user is not a member of the room")
var ErrActivityNotFound = errors.New("activity not found")
var ErrNotPending = errors.New("activity is not pending")
var ErrRoundActive = errors.New("another voting round is already active")
var ErrNotVoting = errors.New("activity is not open for voting")
var ErrNoActiveRound = errors.New("activity is not the active voting round")
var ErrVotingInProgress = errors.New("activity cannot be removed while voting")
var ErrAlreadyVoted = errors.New("vote already recorded")
var ErrMissingUserID = errors.New("user id is required")
var ErrMissingUserName = errors.New("user name is required")
var ErrMissingActivityID = errors.New("activity id is required")
var ErrMissingTitle = errors.New("activity title is required")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Status string

const (
	StatusPending   Status = "pending"
	StatusVoting    Status = "voting"
	StatusCompleted Status = "completed"
)

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisclosedVote is one entry of an activity's published vote list. It only
// ever leaves the engine after the activity has been revealed.
type DisclosedVote struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Vote     VoteValue `json:"vote"`
}

type Activity struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`
	Result      *float64        `json:"result"`
	Votes       []DisclosedVote `json:"votes,omitempty"`
}

// ballot is a hidden vote. Ballots keep submission order so the disclosed
// list is deterministic, and they remember the voter's name so a vote
// survives its user disconnecting mid-round.
type ballot struct {
	UserID   string
	UserName string
	Vote     VoteValue
}

type Rules struct {
	// AllowRevote lets a user overwrite their ballot before reveal.
	AllowRevote bool
}

// State is the canonical room state. It is owned by exactly one session
// goroutine; Apply never mutates its input, it returns a new State sharing
// untouched slices.
type State struct {
	RoomID            string
	RoomName          string
	OwnerID           string
	Users             []User
	Activities        []Activity
	CurrentActivityID string // "" when no round is active
	Rules             Rules

	ballots map[string][]ballot // activityID -> votes in submission order
}

func NewState(roomID, roomName, ownerID string, rules Rules) State {
	return State{
		RoomID:   roomID,
		RoomName: roomName,
		OwnerID:  ownerID,
		Rules:    rules,
		ballots:  map[string][]ballot{},
	}
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdCreateActivity CommandType = "CreateActivity"
	CmdStartVoting    CommandType = "StartVoting"
	CmdVote           CommandType = "Vote"
	CmdRevealResults  CommandType = "RevealResults"
	CmdRemoveActivity CommandType = "RemoveActivity"
)

type Command struct {
	Type        CommandType
	UserID      string
	UserName    string
	ActivityID  string
	Title       string
	Description string
	Vote        VoteValue
}

type EventType string

const (
	EvtUserJoined      EventType = "UserJoined"
	EvtUserLeft        EventType = "UserLeft"
	EvtActivityCreated EventType = "ActivityCreated"
	EvtVotingStarted   EventType = "VotingStarted"
	EvtVoteReceived    EventType = "VoteReceived"
	EvtAllVoted        EventType = "AllVoted"
	EvtResultsRevealed EventType = "ResultsRevealed"
	EvtActivityRemoved EventType = "ActivityRemoved"
)

type Event struct {
	Type       EventType
	UserID     string
	UserName   string
	ActivityID string
	Activity   *Activity
	HasVoted   bool
	Result     *float64
	Votes      []DisclosedVote
}

// Apply runs one command against the room state. On success it returns the
// events to broadcast and the next state; on error the input state is
// returned unchanged and nothing may be broadcast.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if cmd.UserID == "" {
		return nil, s, ErrMissingUserID
	}

	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdLeave:
		return applyLeave(s, cmd)
	case CmdCreateActivity:
		return applyCreateActivity(s, cmd)
	case CmdStartVoting:
		return applyStartVoting(s, cmd)
	case CmdVote:
		return applyVote(s, cmd)
	case CmdRevealResults:
		return applyRevealResults(s, cmd)
	case CmdRemoveActivity:
		return applyRemoveActivity(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	name := strings.TrimSpace(cmd.UserName)
	if name == "" {
		return nil, s, ErrMissingUserName
	}

	newState := s
	if i := userIndex(s, cmd.UserID); i >= 0 {
		// Rejoin: refresh the display name, no broadcast. Keeps the
		// reconciler's append-if-absent handler idempotent.
		newState.Users = cloneUsers(s.Users)
		newState.Users[i].Name = name
		return nil, newState, nil
	}

	newState.Users = append(cloneUsers(s.Users), User{ID: cmd.UserID, Name: name})
	events := []Event{{Type: EvtUserJoined, UserID: cmd.UserID, UserName: name}}
	return events, newState, nil
}

func applyLeave(s State, cmd Command) ([]Event, State, error) {
	i := userIndex(s, cmd.UserID)
	if i < 0 {
		return nil, s, nil
	}

	left := s.Users[i]
	newState := s
	newState.Users = append(cloneUsers(s.Users[:i]), s.Users[i+1:]...)
	// Recorded ballots are kept; a mid-round disconnect does not retract
	// the vote already submitted.
	events := []Event{{Type: EvtUserLeft, UserID: left.ID, UserName: left.Name}}
	if round := s.ballots[s.CurrentActivityID]; s.CurrentActivityID != "" &&
		ballotIndex(round, left.ID) < 0 && everyMemberVoted(newState.Users, round) {
		// The last holdout left; everyone still present has voted.
		events = append(events, Event{Type: EvtAllVoted, ActivityID: s.CurrentActivityID})
	}
	return events, newState, nil
}

func applyCreateActivity(s State, cmd Command) ([]Event, State, error) {
	if cmd.UserID != s.OwnerID {
		return nil, s, ErrNotOwner
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return nil, s, ErrMissingTitle
	}
	if cmd.ActivityID == "" {
		return nil, s, ErrMissingActivityID
	}

	act := Activity{
		ID:          cmd.ActivityID,
		Title:       title,
		Description: strings.TrimSpace(cmd.Description),
		Status:      StatusPending,
	}
	newState := s
	newState.Activities = append(cloneActivities(s.Activities), act)
	events := []Event{{Type: EvtActivityCreated, ActivityID: act.ID, Activity: &act}}
	return events, newState, nil
}

func applyStartVoting(s State, cmd Command) ([]Event, State, error) {
	if cmd.UserID != s.OwnerID {
		return nil, s, ErrNotOwner
	}
	i := activityIndex(s, cmd.ActivityID)
	if i < 0 {
		return nil, s, ErrActivityNotFound
	}
	if s.Activities[i].Status != StatusPending {
		return nil, s, ErrNotPending
	}
	// One estimation round at a time per room.
	if s.CurrentActivityID != "" {
		return nil, s, ErrRoundActive
	}

	newState := s
	newState.Activities = cloneActivities(s.Activities)
	newState.Activities[i].Status = StatusVoting
	newState.CurrentActivityID = cmd.ActivityID
	// Drop any stale vote tracking carried over for this id.
	newState.ballots = cloneBallots(s.ballots)
	delete(newState.ballots, cmd.ActivityID)

	started := newState.Activities[i]
	events := []Event{{Type: EvtVotingStarted, ActivityID: cmd.ActivityID, Activity: &started}}
	return events, newState, nil
}

func applyVote(s State, cmd Command) ([]Event, State, error) {
	i := userIndex(s, cmd.UserID)
	if i < 0 {
		return nil, s, ErrNotInRoom
	}
	ai := activityIndex(s, cmd.ActivityID)
	if ai < 0 {
		return nil, s, ErrActivityNotFound
	}
	if cmd.ActivityID != s.CurrentActivityID {
		return nil, s, ErrNoActiveRound
	}
	if s.Activities[ai].Status != StatusVoting {
		return nil, s, ErrNotVoting
	}

	voter := s.Users[i]
	cast := ballot{UserID: voter.ID, UserName: voter.Name, Vote: cmd.Vote}

	newState := s
	newState.ballots = cloneBallots(s.ballots)
	round := newState.ballots[cmd.ActivityID]
	if bi := ballotIndex(round, voter.ID); bi >= 0 {
		if !s.Rules.AllowRevote {
			return nil, s, ErrAlreadyVoted
		}
		round[bi] = cast
	} else {
		round = append(round, cast)
	}
	newState.ballots[cmd.ActivityID] = round

	// The vote value stays hidden: the broadcast carries presence only.
	events := []Event{{
		Type:       EvtVoteReceived,
		ActivityID: cmd.ActivityID,
		UserID:     voter.ID,
		UserName:   voter.Name,
		HasVoted:   true,
	}}
	if everyMemberVoted(newState.Users, round) {
		events = append(events, Event{Type: EvtAllVoted, ActivityID: cmd.ActivityID})
	}
	return events, newState, nil
}

func applyRevealResults(s State, cmd Command) ([]Event, State, error) {
	if cmd.UserID != s.OwnerID {
		return nil, s, ErrNotOwner
	}
	i := activityIndex(s, cmd.ActivityID)
	if i < 0 {
		return nil, s, ErrActivityNotFound
	}
	if s.Activities[i].Status != StatusVoting {
		return nil, s, ErrNotVoting
	}

	disclosed := discloseBallots(s.ballots[cmd.ActivityID])
	result := Aggregate(disclosed)

	newState := s
	newState.Activities = cloneActivities(s.Activities)
	newState.Activities[i].Status = StatusCompleted
	newState.Activities[i].Result = result
	newState.Activities[i].Votes = disclosed
	newState.ballots = cloneBallots(s.ballots)
	delete(newState.ballots, cmd.ActivityID)
	if newState.CurrentActivityID == cmd.ActivityID {
		newState.CurrentActivityID = ""
	}

	events := []Event{{
		Type:       EvtResultsRevealed,
		ActivityID: cmd.ActivityID,
		Result:     result,
		Votes:      disclosed,
	}}
	return events, newState, nil
}

func applyRemoveActivity(s State, cmd Command) ([]Event, State, error) {
	if cmd.UserID != s.OwnerID {
		return nil, s, ErrNotOwner
	}
	i := activityIndex(s, cmd.ActivityID)
	if i < 0 {
		return nil, s, ErrActivityNotFound
	}
	if s.Activities[i].Status == StatusVoting {
		return nil, s, ErrVotingInProgress
	}

	newState := s
	newState.Activities = append(cloneActivities(s.Activities[:i]), s.Activities[i+1:]...)
	newState.ballots = cloneBallots(s.ballots)
	delete(newState.ballots, cmd.ActivityID)
	if newState.CurrentActivityID == cmd.ActivityID {
		newState.CurrentActivityID = ""
	}

	events := []Event{{Type: EvtActivityRemoved, ActivityID: cmd.ActivityID}}
	return events, newState, nil
}

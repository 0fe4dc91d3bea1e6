package engine

import (
	"errors"
	"testing"
)

const ownerID = "owner-1"

// newRoom builds a room with the given members joined in order. The first
// entry is expected to be the owner.
func newRoom(t *testing.T, members ...User) State {
	t.Helper()
	s := NewState("room-1", "Sprint 1", ownerID, Rules{AllowRevote: true})
	for _, m := range members {
		var err error
		_, s, err = Apply(s, Command{Type: CmdJoin, UserID: m.ID, UserName: m.Name})
		if err != nil {
			t.Fatalf("join %s: %v", m.ID, err)
		}
	}
	return s
}

func mustApply(t *testing.T, s State, cmd Command) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd)
	if err != nil {
		t.Fatalf("apply %s: %v", cmd.Type, err)
	}
	return events, next
}

func alice() User { return User{ID: ownerID, Name: "Alice"} }
func bob() User   { return User{ID: "user-2", Name: "Bob"} }

func TestJoin(t *testing.T) {
	s := newRoom(t)

	events, s := mustApply(t, s, Command{Type: CmdJoin, UserID: ownerID, UserName: "Alice"})
	if !ContainsEvent(events, EvtUserJoined) {
		t.Fatalf("expected user-joined event, got %+v", events)
	}
	if len(s.Users) != 1 || s.Users[0].Name != "Alice" {
		t.Fatalf("unexpected users: %+v", s.Users)
	}

	// Rejoin refreshes the name without broadcasting.
	events, s = mustApply(t, s, Command{Type: CmdJoin, UserID: ownerID, UserName: "Alice C."})
	if len(events) != 0 {
		t.Fatalf("rejoin should not emit events, got %+v", events)
	}
	if len(s.Users) != 1 || s.Users[0].Name != "Alice C." {
		t.Fatalf("rejoin should refresh the name: %+v", s.Users)
	}

	if _, _, err := Apply(s, Command{Type: CmdJoin, UserID: "user-2", UserName: "   "}); !errors.Is(err, ErrMissingUserName) {
		t.Fatalf("want ErrMissingUserName, got %v", err)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	s := newRoom(t, alice(), bob())

	events, s := mustApply(t, s, Command{Type: CmdLeave, UserID: "user-2"})
	if !ContainsEvent(events, EvtUserLeft) {
		t.Fatalf("expected user-left event")
	}
	if len(s.Users) != 1 {
		t.Fatalf("expected one remaining user, got %+v", s.Users)
	}

	events, s = mustApply(t, s, Command{Type: CmdLeave, UserID: "user-2"})
	if len(events) != 0 || len(s.Users) != 1 {
		t.Fatalf("second leave should be a no-op")
	}
}

func TestCreateActivityGuards(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "non-owner rejected",
			cmd:     Command{Type: CmdCreateActivity, UserID: "user-2", ActivityID: "a1", Title: "Login"},
			wantErr: ErrNotOwner,
		},
		{
			name:    "empty title rejected",
			cmd:     Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "   "},
			wantErr: ErrMissingTitle,
		},
		{
			name: "owner creates pending activity",
			cmd:  Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login", Description: "auth flow"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newRoom(t, alice(), bob())
			events, next, err := Apply(s, tc.cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if len(next.Activities) != 0 {
					t.Fatalf("rejected command must not change state")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if len(next.Activities) != 1 || next.Activities[0].Status != StatusPending {
				t.Fatalf("expected one pending activity, got %+v", next.Activities)
			}
			if !ContainsEvent(events, EvtActivityCreated) {
				t.Fatalf("expected activity-created event")
			}
		})
	}
}

func TestStartVotingGuards(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a2", Title: "Search"})

	if _, _, err := Apply(s, Command{Type: CmdStartVoting, UserID: "user-2", ActivityID: "a1"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "missing"}); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("want ErrActivityNotFound, got %v", err)
	}

	events, s := mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})
	if !ContainsEvent(events, EvtVotingStarted) {
		t.Fatalf("expected voting-started event")
	}
	if s.CurrentActivityID != "a1" || s.Activities[0].Status != StatusVoting {
		t.Fatalf("voting round not set up: %+v", s)
	}

	// Only one active round per room.
	if _, _, err := Apply(s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a2"}); !errors.Is(err, ErrRoundActive) {
		t.Fatalf("want ErrRoundActive, got %v", err)
	}
	// No backward transition out of voting via start.
	if _, _, err := Apply(s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"}); !errors.Is(err, ErrNotPending) {
		t.Fatalf("want ErrNotPending, got %v", err)
	}
}

func TestVoteGuards(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a2", Title: "Search"})

	// No round yet.
	if _, _, err := Apply(s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)}); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("want ErrNoActiveRound, got %v", err)
	}

	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})

	if _, _, err := Apply(s, Command{Type: CmdVote, UserID: "stranger", ActivityID: "a1", Vote: NumericVote(5)}); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("want ErrNotInRoom, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a2", Vote: NumericVote(5)}); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("want ErrNoActiveRound, got %v", err)
	}

	events, s := mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)})
	if len(events) != 1 || events[0].Type != EvtVoteReceived {
		t.Fatalf("expected only vote-received, got %+v", events)
	}
	if !events[0].HasVoted || events[0].UserID != "user-2" {
		t.Fatalf("vote-received should carry presence for the voter: %+v", events[0])
	}
	// Presence only: the broadcast must not leak the value.
	if events[0].Votes != nil || events[0].Result != nil {
		t.Fatalf("vote-received must not disclose values: %+v", events[0])
	}

	got := s.VotedUserIDs("a1")
	if len(got) != 1 || got[0] != "user-2" {
		t.Fatalf("voted set mismatch: %v", got)
	}
}

func TestRevoteHonorsRule(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)})

	// AllowRevote=true: overwrite silently, still one ballot.
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(3)})
	if got := s.VotedUserIDs("a1"); len(got) != 1 {
		t.Fatalf("revote must overwrite, got %v", got)
	}

	locked := s
	locked.Rules.AllowRevote = false
	if _, _, err := Apply(locked, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(8)}); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("want ErrAlreadyVoted, got %v", err)
	}
}

func TestAllVotedFiresOnLastMember(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})

	events, s := mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)})
	if ContainsEvent(events, EvtAllVoted) {
		t.Fatalf("all-voted must wait for every member")
	}
	events, _ = mustApply(t, s, Command{Type: CmdVote, UserID: ownerID, ActivityID: "a1", Vote: NumericVote(8)})
	if !ContainsEvent(events, EvtAllVoted) {
		t.Fatalf("expected all-voted after the last member, got %+v", events)
	}
}

func TestAllVotedFiresWhenLastHoldoutLeaves(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: ownerID, ActivityID: "a1", Vote: NumericVote(5)})

	// Bob never votes; his departure leaves only voters behind.
	events, s := mustApply(t, s, Command{Type: CmdLeave, UserID: "user-2"})
	if !ContainsEvent(events, EvtAllVoted) {
		t.Fatalf("expected all-voted once the holdout left, got %+v", events)
	}

	// A voter leaving must not fire it again.
	events, _ = mustApply(t, s, Command{Type: CmdLeave, UserID: ownerID})
	if ContainsEvent(events, EvtAllVoted) {
		t.Fatalf("a departing voter must not re-trigger all-voted: %+v", events)
	}
}

func TestRevealCompletesRound(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)})
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: ownerID, ActivityID: "a1", Vote: NumericVote(8)})

	if _, _, err := Apply(s, Command{Type: CmdRevealResults, UserID: "user-2", ActivityID: "a1"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}

	events, s := mustApply(t, s, Command{Type: CmdRevealResults, UserID: ownerID, ActivityID: "a1"})
	if len(events) != 1 || events[0].Type != EvtResultsRevealed {
		t.Fatalf("expected results-revealed, got %+v", events)
	}
	if events[0].Result == nil || *events[0].Result != 6.5 {
		t.Fatalf("want result 6.5, got %v", events[0].Result)
	}
	// Disclosure in submission order.
	votes := events[0].Votes
	if len(votes) != 2 || votes[0].UserID != "user-2" || votes[1].UserID != ownerID {
		t.Fatalf("unexpected disclosed votes: %+v", votes)
	}

	act := s.Activities[0]
	if act.Status != StatusCompleted || act.Result == nil || len(act.Votes) != 2 {
		t.Fatalf("activity not completed properly: %+v", act)
	}
	if s.CurrentActivityID != "" {
		t.Fatalf("currentActivityId should clear on reveal")
	}

	// Completed rounds are immutable: no further votes, no second reveal.
	if _, _, err := Apply(s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(1)}); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("want ErrNoActiveRound after reveal, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdRevealResults, UserID: ownerID, ActivityID: "a1"}); !errors.Is(err, ErrNotVoting) {
		t.Fatalf("want ErrNotVoting on double reveal, got %v", err)
	}
}

func TestRevealRequiresVotingStatus(t *testing.T) {
	s := newRoom(t, alice())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})

	// pending -> completed directly is impossible.
	if _, _, err := Apply(s, Command{Type: CmdRevealResults, UserID: ownerID, ActivityID: "a1"}); !errors.Is(err, ErrNotVoting) {
		t.Fatalf("want ErrNotVoting, got %v", err)
	}
}

func TestDepartedVoterStaysDisclosed(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})
	_, s = mustApply(t, s, Command{Type: CmdVote, UserID: "user-2", ActivityID: "a1", Vote: NumericVote(5)})
	_, s = mustApply(t, s, Command{Type: CmdLeave, UserID: "user-2"})

	events, _ := mustApply(t, s, Command{Type: CmdRevealResults, UserID: ownerID, ActivityID: "a1"})
	votes := events[0].Votes
	if len(votes) != 1 || votes[0].UserID != "user-2" || votes[0].UserName != "Bob" {
		t.Fatalf("departed voter's ballot should survive: %+v", votes)
	}
}

func TestRemoveActivityGuards(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a2", Title: "Search"})
	_, s = mustApply(t, s, Command{Type: CmdStartVoting, UserID: ownerID, ActivityID: "a1"})

	if _, _, err := Apply(s, Command{Type: CmdRemoveActivity, UserID: ownerID, ActivityID: "a1"}); !errors.Is(err, ErrVotingInProgress) {
		t.Fatalf("want ErrVotingInProgress, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdRemoveActivity, UserID: "user-2", ActivityID: "a2"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}

	events, s := mustApply(t, s, Command{Type: CmdRemoveActivity, UserID: ownerID, ActivityID: "a2"})
	if !ContainsEvent(events, EvtActivityRemoved) {
		t.Fatalf("expected activity-removed event")
	}
	if len(s.Activities) != 1 || s.Activities[0].ID != "a1" {
		t.Fatalf("unexpected activities after removal: %+v", s.Activities)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := newRoom(t, alice(), bob())
	_, s = mustApply(t, s, Command{Type: CmdCreateActivity, UserID: ownerID, ActivityID: "a1", Title: "Login"})

	before := len(s.Users)
	_, next, err := Apply(s, Command{Type: CmdLeave, UserID: "user-2"})
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(s.Users) != before {
		t.Fatalf("input state mutated: %+v", s.Users)
	}
	if len(next.Users) != before-1 {
		t.Fatalf("next state missing the removal: %+v", next.Users)
	}
}

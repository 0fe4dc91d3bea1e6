package engine

func userIndex(s State, userID string) int {
	for i, u := range s.Users {
		if u.ID == userID {
			return i
		}
	}
	return -1
}

func activityIndex(s State, activityID string) int {
	for i, a := range s.Activities {
		if a.ID == activityID {
			return i
		}
	}
	return -1
}

func ballotIndex(round []ballot, userID string) int {
	for i, b := range round {
		if b.UserID == userID {
			return i
		}
	}
	return -1
}

func cloneUsers(users []User) []User {
	out := make([]User, len(users))
	copy(out, users)
	return out
}

func cloneActivities(activities []Activity) []Activity {
	out := make([]Activity, len(activities))
	copy(out, activities)
	return out
}

func cloneBallots(ballots map[string][]ballot) map[string][]ballot {
	out := make(map[string][]ballot, len(ballots))
	for id, round := range ballots {
		r := make([]ballot, len(round))
		copy(r, round)
		out[id] = r
	}
	return out
}

// everyMemberVoted reports whether each current member has a ballot in the
// round. Ballots from users who already left do not count against it.
func everyMemberVoted(users []User, round []ballot) bool {
	if len(users) == 0 {
		return false
	}
	for _, u := range users {
		if ballotIndex(round, u.ID) < 0 {
			return false
		}
	}
	return true
}

func discloseBallots(round []ballot) []DisclosedVote {
	out := make([]DisclosedVote, len(round))
	for i, b := range round {
		out[i] = DisclosedVote{UserID: b.UserID, UserName: b.UserName, Vote: b.Vote}
	}
	return out
}

// VotedUserIDs lists, in submission order, the users with a recorded ballot
// for the activity. Values stay hidden.
func (s State) VotedUserIDs(activityID string) []string {
	round := s.ballots[activityID]
	out := make([]string, len(round))
	for i, b := range round {
		out[i] = b.UserID
	}
	return out
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

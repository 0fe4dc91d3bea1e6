package engine

import (
	"encoding/json"
	"fmt"
)

// UnknownMark is the wire form of an "I don't know" vote.
const UnknownMark = "?"

// VoteValue is either a numeric estimate or the unknown marker. On the wire
// it is a JSON number or the string "?".
type VoteValue struct {
	Value   int
	Unknown bool
}

func NumericVote(v int) VoteValue { return VoteValue{Value: v} }

func UnknownVote() VoteValue { return VoteValue{Unknown: true} }

func (v VoteValue) MarshalJSON() ([]byte, error) {
	if v.Unknown {
		return json.Marshal(UnknownMark)
	}
	return json.Marshal(v.Value)
}

func (v *VoteValue) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = VoteValue{Value: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s == UnknownMark {
		*v = VoteValue{Unknown: true}
		return nil
	}
	return fmt.Errorf("invalid vote value %s", data)
}

func (v VoteValue) String() string {
	if v.Unknown {
		return UnknownMark
	}
	return fmt.Sprintf("%d", v.Value)
}

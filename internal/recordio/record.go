// Package recordio implements the gzipped, newline-delimited JSON codec
// for history records and rewarded-decision outputs, plus the record
// types the rest of reward-worker operates on.
package recordio

import (
	"encoding/json"
	"time"
)

// Type identifies which of the three record kinds a line decodes to.
type Type string

const (
	TypeDecision Type = "decision"
	TypeRewards  Type = "rewards"
	TypeEvent    Type = "event"
)

// DefaultRewardKey is the bucket used for a decision record that does not
// specify an explicit reward_key.
const DefaultRewardKey = "reward"

// Record is one line of a history file, lifted from raw JSON into a
// typed, timestamp-parsed form. Fields not relevant to the record's Type
// are zero. Raw holds the original decoded JSON object so that decision
// fields (variant, givens, runners_up, sample, ...) can be re-serialized
// verbatim into RewardedDecision without the codec needing to know every
// field name a decision record may carry.
type Record struct {
	MessageID string
	Timestamp time.Time
	Type      Type
	HistoryID string

	// SourceFile is the input file this record was read from. The reward
	// engine ignores it; the worker driver uses it to split a file
	// group's rewarded decisions back across their per-file outputs.
	SourceFile string

	// Decision-only fields.
	Model     string
	Count     int
	RewardKey string

	// Rewards-only field: reward_key -> contribution.
	Rewards map[string]float64

	// Event-only field: properties.value, present iff EventValueSet.
	EventValue    float64
	EventValueSet bool

	// Raw is the full decoded JSON object for this line, timestamp still
	// in its original string form. Used to build RewardedDecision output
	// without dropping fields the validator does not otherwise inspect.
	Raw map[string]any
}

// RewardedDecision is a decision record extended with its computed
// reward. MarshalJSON emits Raw verbatim plus the reward field, so every
// other decision field is preserved exactly as it arrived.
type RewardedDecision struct {
	Record Record
	Reward float64
}

// MarshalJSON implements json.Marshaler by cloning the decision's raw
// object and setting its reward field.
func (rd RewardedDecision) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(rd.Record.Raw)+1)
	for k, v := range rd.Record.Raw {
		out[k] = v
	}
	out["reward"] = rd.Reward
	return json.Marshal(out)
}

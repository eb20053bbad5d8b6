// Package validate implements the per-record schema, timestamp, and
// identity checks a decoded history line must pass before it is handed
// to the reward engine.
package validate

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tsukumogami/reward-worker/internal/recordio"
)

// Reason names why a record was dropped, for stats counting. The zero
// value means the record passed validation.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMissingFields    Reason = "missing_fields"
	ReasonMissingTimestamp Reason = "missing_timestamp"
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	ReasonInvalidDecision  Reason = "invalid_decision"
	ReasonIdentityMismatch Reason = "identity_mismatch"
)

// GroupState carries the identity established so far for one file group.
// The first record to pass identity verification latches HistoryID; every
// subsequent record in the group must carry that same history_id.
type GroupState struct {
	HashedHistoryID string
	HistoryID       string
}

// Validate applies the ordered checks from the reward-assignment
// specification to one decoded JSON line. On success it returns the
// lifted recordio.Record and ReasonNone. On failure it returns a Reason
// describing which check failed; the caller drops the record and
// increments the matching counter.
//
// Missing or unparseable timestamps are reported as a distinct Reason
// (ReasonMissingTimestamp / ReasonInvalidTimestamp) because a record
// with no placement on the timeline cannot be sorted or windowed —
// every other failure is a plain schema/identity rejection.
func Validate(line recordio.RawLine, group *GroupState) (recordio.Record, Reason) {
	messageID, ok := stringField(line, "message_id")
	if !ok || messageID == "" {
		return recordio.Record{}, ReasonMissingFields
	}

	typeStr, ok := stringField(line, "type")
	if !ok || typeStr == "" {
		return recordio.Record{}, ReasonMissingFields
	}

	historyID, ok := stringField(line, "history_id")
	if !ok || historyID == "" {
		return recordio.Record{}, ReasonMissingFields
	}

	rawTS, ok := line["timestamp"]
	if !ok || rawTS == nil {
		return recordio.Record{}, ReasonMissingTimestamp
	}
	tsStr, ok := rawTS.(string)
	if !ok || tsStr == "" {
		return recordio.Record{}, ReasonMissingTimestamp
	}
	ts, err := recordio.ParseTimestamp(tsStr)
	if err != nil {
		return recordio.Record{}, ReasonInvalidTimestamp
	}

	rec := recordio.Record{
		MessageID: messageID,
		Timestamp: ts,
		Type:      recordio.Type(normalizeType(typeStr)),
		HistoryID: historyID,
		Raw:       line,
	}

	switch rec.Type {
	case recordio.TypeDecision:
		model, ok := stringField(line, "model")
		if !ok || model == "" {
			return recordio.Record{}, ReasonInvalidDecision
		}
		count, ok := positiveIntField(line, "count")
		if !ok {
			return recordio.Record{}, ReasonInvalidDecision
		}
		rec.Model = model
		rec.Count = count
		rec.RewardKey = rewardKeyOf(line)

	case recordio.TypeRewards:
		rewards, ok := numericMapField(line, "rewards")
		if !ok {
			return recordio.Record{}, ReasonMissingFields
		}
		rec.Rewards = rewards

	case recordio.TypeEvent:
		if v, ok := eventValue(line); ok {
			rec.EventValue = v
			rec.EventValueSet = true
		}

	default:
		// An unrecognized type isn't schema-valid; drop it rather than
		// letting it reach the engine's defensive check.
		return recordio.Record{}, ReasonMissingFields
	}

	if group.HistoryID != "" {
		if historyID != group.HistoryID {
			return recordio.Record{}, ReasonIdentityMismatch
		}
	} else {
		if !hashMatches(historyID, group.HashedHistoryID) {
			return recordio.Record{}, ReasonIdentityMismatch
		}
		group.HistoryID = historyID
	}

	return rec, ReasonNone
}

func normalizeType(t string) string {
	if t == "reward" {
		return string(recordio.TypeRewards)
	}
	return t
}

func hashMatches(historyID, expectedHex string) bool {
	sum := sha256.Sum256([]byte(historyID))
	return hex.EncodeToString(sum[:]) == expectedHex
}

func stringField(m recordio.RawLine, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func rewardKeyOf(m recordio.RawLine) string {
	if s, ok := stringField(m, "reward_key"); ok && s != "" {
		return s
	}
	return recordio.DefaultRewardKey
}

// positiveIntField requires a strict positive integer: JSON numbers that
// are whole and positive. A float like 1.5, a string "1", or a negative
// or zero value are all rejected.
func positiveIntField(m recordio.RawLine, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if f != float64(int(f)) || f <= 0 {
		return 0, false
	}
	return int(f), true
}

func numericMapField(m recordio.RawLine, key string) (map[string]float64, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(raw))
	for k, val := range raw {
		f, ok := toFloat(val)
		if !ok {
			continue
		}
		out[k] = f
	}
	return out, true
}

func eventValue(m recordio.RawLine) (float64, bool) {
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := props["value"]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

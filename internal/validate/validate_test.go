package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/tsukumogami/reward-worker/internal/recordio"
)

func hashOf(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func decisionLine(historyID, messageID string) recordio.RawLine {
	return recordio.RawLine{
		"message_id": messageID,
		"timestamp":  "2020-01-01T00:00:00Z",
		"type":       "decision",
		"history_id": historyID,
		"model":      "messages-2.0",
		"count":      float64(1),
	}
}

func TestValidateAcceptsValidDecision(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	rec, reason := Validate(decisionLine("user-1", "a"), group)
	if reason != ReasonNone {
		t.Fatalf("expected valid record, got reason %q", reason)
	}
	if rec.Model != "messages-2.0" || rec.Count != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if group.HistoryID != "user-1" {
		t.Errorf("expected identity to latch, got %q", group.HistoryID)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-1", "a")
	delete(line, "message_id")

	if _, reason := Validate(line, group); reason != ReasonMissingFields {
		t.Errorf("reason = %q, want %q", reason, ReasonMissingFields)
	}
}

func TestValidateRejectsMissingTimestamp(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-1", "a")
	delete(line, "timestamp")

	if _, reason := Validate(line, group); reason != ReasonMissingTimestamp {
		t.Errorf("reason = %q, want %q", reason, ReasonMissingTimestamp)
	}
}

func TestValidateRejectsUnparseableTimestamp(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-1", "a")
	line["timestamp"] = "not-a-date"

	if _, reason := Validate(line, group); reason != ReasonInvalidTimestamp {
		t.Errorf("reason = %q, want %q", reason, ReasonInvalidTimestamp)
	}
}

func TestValidateRejectsMissingModel(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-1", "a")
	delete(line, "model")

	if _, reason := Validate(line, group); reason != ReasonInvalidDecision {
		t.Errorf("reason = %q, want %q", reason, ReasonInvalidDecision)
	}
}

func TestValidateRejectsNonIntegerCount(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-1", "a")
	line["count"] = 1.5

	if _, reason := Validate(line, group); reason != ReasonInvalidDecision {
		t.Errorf("reason = %q, want %q", reason, ReasonInvalidDecision)
	}

	line["count"] = "1"
	if _, reason := Validate(line, group); reason != ReasonInvalidDecision {
		t.Errorf("reason = %q, want %q", reason, ReasonInvalidDecision)
	}

	line["count"] = float64(0)
	if _, reason := Validate(line, group); reason != ReasonInvalidDecision {
		t.Errorf("reason = %q, want %q", reason, ReasonInvalidDecision)
	}
}

func TestValidateRejectsIdentityHashMismatch(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := decisionLine("user-2", "a")

	if _, reason := Validate(line, group); reason != ReasonIdentityMismatch {
		t.Errorf("reason = %q, want %q", reason, ReasonIdentityMismatch)
	}
}

func TestValidateRejectsHistoryIDMismatchAfterLatch(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	if _, reason := Validate(decisionLine("user-1", "a"), group); reason != ReasonNone {
		t.Fatalf("setup record should be valid, got %q", reason)
	}

	line := decisionLine("user-1", "b")
	line["history_id"] = "someone-else"
	if _, reason := Validate(line, group); reason != ReasonIdentityMismatch {
		t.Errorf("reason = %q, want %q", reason, ReasonIdentityMismatch)
	}
}

func TestValidateRewardsRecord(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := recordio.RawLine{
		"message_id": "r1",
		"timestamp":  "2020-01-01T00:00:30Z",
		"type":       "rewards",
		"history_id": "user-1",
		"rewards":    map[string]any{"k": 1.5},
	}

	rec, reason := Validate(line, group)
	if reason != ReasonNone {
		t.Fatalf("expected valid rewards record, got %q", reason)
	}
	if rec.Rewards["k"] != 1.5 {
		t.Errorf("rewards = %v", rec.Rewards)
	}
}

func TestValidateEventDefaultsToNoValue(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := recordio.RawLine{
		"message_id": "e1",
		"timestamp":  "2020-01-01T00:00:10Z",
		"type":       "event",
		"history_id": "user-1",
	}

	rec, reason := Validate(line, group)
	if reason != ReasonNone {
		t.Fatalf("expected valid event record, got %q", reason)
	}
	if rec.EventValueSet {
		t.Errorf("expected no explicit event value")
	}
}

func TestValidateEventWithExplicitValue(t *testing.T) {
	group := &GroupState{HashedHistoryID: hashOf("user-1")}
	line := recordio.RawLine{
		"message_id": "e1",
		"timestamp":  "2020-01-01T00:00:10Z",
		"type":       "event",
		"history_id": "user-1",
		"properties": map[string]any{"value": float64(3)},
	}

	rec, reason := Validate(line, group)
	if reason != ReasonNone {
		t.Fatalf("expected valid event record, got %q", reason)
	}
	if !rec.EventValueSet || rec.EventValue != 3 {
		t.Errorf("unexpected event value: %+v", rec)
	}
}

// Package reward implements the sliding-window join: it assigns every
// decision record the sum of reward and event contributions that land in
// the half-open window (t_D, t_D+W] after it.
package reward

import (
	"fmt"
	"time"

	"github.com/tsukumogami/reward-worker/internal/recordio"
)

// entry is one decision still tracked for its reward-key bucket.
type entry struct {
	record recordio.Record
	reward float64
}

// bucket holds every decision seen for one reward_key, in arrival order.
// liveStart is the index of the first listener still inside some
// contribution's window; entries before it have already expired and no
// longer receive contributions, but remain in the slice for output.
type bucket struct {
	entries   []*entry
	liveStart int
}

// Assign runs the sliding-window join over records, which must already
// be sorted non-decreasingly by timestamp (internal/history guarantees
// this). window is W; defaultEventValue is substituted for an event
// record with no properties.value.
//
// Assign is a pure function of its arguments: for the same inputs it
// always produces the same rewarded decisions, independent of wall-clock
// time.
func Assign(records []recordio.Record, window time.Duration, defaultEventValue float64) ([]recordio.RewardedDecision, error) {
	buckets := make(map[string]*bucket)
	var bucketOrder []string

	getBucket := func(key string) *bucket {
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			bucketOrder = append(bucketOrder, key)
		}
		return b
	}

	for _, rec := range records {
		switch rec.Type {
		case recordio.TypeDecision:
			b := getBucket(rec.RewardKey)
			b.entries = append(b.entries, &entry{record: rec})

		case recordio.TypeRewards:
			for key, value := range rec.Rewards {
				applyContribution(getBucket(key), rec.Timestamp, window, value)
			}

		case recordio.TypeEvent:
			value := defaultEventValue
			if rec.EventValueSet {
				value = rec.EventValue
			}
			for _, key := range bucketOrder {
				applyContribution(buckets[key], rec.Timestamp, window, value)
			}

		default:
			return nil, fmt.Errorf("reward: unknown record type %q (validator should have rejected this)", rec.Type)
		}
	}

	var out []recordio.RewardedDecision
	for _, key := range bucketOrder {
		for _, e := range buckets[key].entries {
			out = append(out, recordio.RewardedDecision{Record: e.record, Reward: e.reward})
		}
	}
	return out, nil
}

// applyContribution expires any listener in b whose window has closed as
// of current, then adds value to every remaining listener whose decision
// timestamp is strictly before current — the window is open on the left,
// so a contribution at the same instant as a decision never rewards it.
func applyContribution(b *bucket, current time.Time, window time.Duration, value float64) {
	for b.liveStart < len(b.entries) {
		e := b.entries[b.liveStart]
		if e.record.Timestamp.Add(window).Before(current) {
			b.liveStart++
			continue
		}
		break
	}

	for i := b.liveStart; i < len(b.entries); i++ {
		e := b.entries[i]
		if !e.record.Timestamp.Before(current) {
			continue
		}
		e.reward += value
	}
}

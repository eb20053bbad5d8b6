package recordio

import "time"

// ParseTimestamp parses an ISO-8601 timestamp with a time-zone offset,
// as emitted by the transport layer, preserving millisecond resolution.
// RFC3339Nano accepts both second- and sub-second-precision offsets and
// fractional digit counts, which covers every format the original
// Python `dateutil.parser.parse` call accepted for this field.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Package timecode converts between millisecond offsets and HH:MM:SS strings.
package timecode

import (
	"fmt"
	"strconv"
	"strings"
)

// ToTimestamp formats a millisecond offset as HH:MM:SS, truncating sub-second
// precision. Round-tripping a sub-second offset therefore floors it to the
// whole second.
func ToTimestamp(ms int64) string {
	secs := ms / 1000
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FromTimestamp parses an HH:MM:SS string back to milliseconds. It is the
// exact inverse of ToTimestamp for whole-second inputs.
func FromTimestamp(ts string) (int64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q: want HH:MM:SS", ts)
	}

	var fields [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("malformed timestamp %q: negative field", ts)
		}
		fields[i] = v
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("malformed timestamp %q: minutes and seconds must be < 60", ts)
	}

	return (fields[0]*3600 + fields[1]*60 + fields[2]) * 1000, nil
}

package logrelay

import (
	"strings"

	"tvship/internal/services/webos"
)

// Filter narrows which log events a session delivers. Zero value passes
// everything.
type Filter struct {
	// App restricts the stream to one application id. It is pushed down
	// to the device query so filtered lines never cross the wire.
	App string
	// MinLevel drops events below the given severity. Unknown levels on
	// either side pass through.
	MinLevel string
	// Contains keeps only lines containing the substring (case-insensitive).
	Contains string
}

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

func (f Filter) match(event webos.LogEvent) bool {
	if f.App != "" && event.App != f.App {
		return false
	}
	if f.MinLevel != "" {
		min, okMin := levelRank[strings.ToLower(f.MinLevel)]
		rank, okEvent := levelRank[strings.ToLower(event.Level)]
		if okMin && okEvent && rank < min {
			return false
		}
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(event.Line), strings.ToLower(f.Contains)) {
		return false
	}
	return true
}

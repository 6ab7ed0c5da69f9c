package item

import (
	"encoding/json"
	"strings"
)

// Level is the severity of an item. Levels are ordered: Debug < Info < Warning < Error < Critical.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// String returns the wire name of the level
func (l Level) String() string {
	if l < LevelDebug || l > LevelCritical {
		return levelNames[LevelError]
	}
	return levelNames[l]
}

// MarshalJSON encodes the level as its lowercase wire name
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel maps a level name to a Level. Unknown names map to LevelError so
// that an unrecognised severity is still reported rather than dropped.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warning", "warn":
		return LevelWarning
	case "critical":
		return LevelCritical
	default:
		return LevelError
	}
}

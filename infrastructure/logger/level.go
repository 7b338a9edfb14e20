package logger

import "strings"

// Level filters which messages a logger emits. A message is dropped when its
// level is below the level its logger is configured with.
type Level uint32

// Level constants, ordered from noisiest to quietest.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelTags = [...]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
	LevelOff:      "OFF",
}

var levelNames = map[string]Level{
	"trace":    LevelTrace,
	"trc":      LevelTrace,
	"debug":    LevelDebug,
	"dbg":      LevelDebug,
	"info":     LevelInfo,
	"inf":      LevelInfo,
	"warn":     LevelWarn,
	"wrn":      LevelWarn,
	"error":    LevelError,
	"err":      LevelError,
	"critical": LevelCritical,
	"crt":      LevelCritical,
	"off":      LevelOff,
}

// LevelFromString interprets s, case-insensitively, as either a full level
// name or a three-letter level tag. Strings that name no level yield
// LevelInfo and false.
func LevelFromString(s string) (Level, bool) {
	level, ok := levelNames[strings.ToLower(s)]
	if !ok {
		return LevelInfo, false
	}
	return level, true
}

// String returns the three-letter tag the level is printed with in log
// messages.
func (l Level) String() string {
	if l > LevelOff {
		return "OFF"
	}
	return levelTags[l]
}

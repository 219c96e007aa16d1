package lokilog

import (
	"strconv"
	"strings"
)

// Level mirrors slog numeric semantics. Warning and Critical take the slots of
// slog's Warn and the usual Fatal extension.
type Level int

const (
	LevelDebug    Level = -4
	LevelInfo     Level = 0
	LevelWarning  Level = 4
	LevelError    Level = 8
	LevelCritical Level = 12
)

func (l Level) String() string {
	switch {
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarning:
		return "WARNING"
	case l <= LevelError:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// ParseLevel accepts level names case-insensitively ("warn" and "fatal" are
// aliases) or a numeric level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return LevelInfo, &UnknownLevelError{Name: s}
	}
	return Level(n), nil
}

// UnknownLevelError is returned by ParseLevel for unrecognised input.
type UnknownLevelError struct{ Name string }

func (e *UnknownLevelError) Error() string { return "lokilog: unknown level " + strconv.Quote(e.Name) }

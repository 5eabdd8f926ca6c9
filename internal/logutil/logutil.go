package logutil

import (
	"encoding/json"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

// Level orders log severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// ParseLevel maps a level name to a Level. Unknown names fall back to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel drops entries below lvl.
func SetLevel(lvl Level) {
	minLevel.Store(int32(lvl))
}

// Enabled reports whether entries at lvl are written.
func Enabled(lvl Level) bool {
	return int32(lvl) >= minLevel.Load()
}

// Debug logs a structured debug message.
func Debug(msg string, fields map[string]interface{}) {
	logJSON(LevelDebug, "debug", msg, fields)
}

// Info logs a structured info message.
func Info(msg string, fields map[string]interface{}) {
	logJSON(LevelInfo, "info", msg, fields)
}

// Warn logs a structured warning.
func Warn(msg string, fields map[string]interface{}) {
	logJSON(LevelWarn, "warn", msg, fields)
}

// Error logs a structured error message including the error string.
func Error(msg string, err error, fields map[string]interface{}) {
	if !Enabled(LevelError) {
		return
	}
	entry := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		entry[k] = v
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	logJSON(LevelError, "error", msg, entry)
}

func logJSON(lvl Level, level, msg string, fields map[string]interface{}) {
	if !Enabled(lvl) {
		return
	}
	entry := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		entry[k] = v
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		log.Printf("%s: %+v", msg, fields)
		return
	}
	log.Printf("%s", payload)
}

package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]string{
	"ok":        "ok",
	"fail":      "fail",
	"skip":      "skip",
	"retry":     "retry",
	"expired":   "expired",
	"cancelled": "cancelled",
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return "", false
	}
	if mapped, ok := allowedStatus[status]; ok {
		return mapped, true
	}
	return status, false
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"ts_unix_nano",
	"update_id",
	"chat_id",
	"account_id",
	"state",
	"next_state",
	"text",
	"cursor",
	"idle_cycles",
	"board_id",
	"category_id",
	"goal_id",
	"goals",
	"categories",
	"batch",
	"count",
	"username",
	"kb",
	"mode",
	"db",
	"host",
	"port",
	"duration_ms",
	"err",
	"cause",
}

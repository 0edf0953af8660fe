package util

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogHandler receives diagnostic messages from library packages. Libraries never write to
// the terminal themselves; the CLI decides how to render these.
type LogHandler func(level, message string, data map[string]any)

// Log forwards to h when it is set.
func (h LogHandler) Log(level, message string, data map[string]any) {
	if h == nil {
		return
	}
	h(level, message, data)
}

func (h LogHandler) Debug(message string, data map[string]any) { h.Log(LevelDebug, message, data) }
func (h LogHandler) Info(message string, data map[string]any)  { h.Log(LevelInfo, message, data) }
func (h LogHandler) Warn(message string, data map[string]any)  { h.Log(LevelWarn, message, data) }
func (h LogHandler) Error(message string, data map[string]any) { h.Log(LevelError, message, data) }

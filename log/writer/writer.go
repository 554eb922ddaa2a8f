package writer

import (
	stdlog "log"

	"github.com/oddbit-project/chargebridge/log"
	"github.com/rs/zerolog"
)

// levelWriter funnels io.Writer writes into zerolog at a fixed level
type levelWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w *levelWriter) Write(p []byte) (int, error) {
	msg := string(p)
	// the stdlib logger terminates every message with a newline
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	w.logger.WithLevel(w.level).Msg(msg)
	return len(p), nil
}

// NewErrorLog adapts a module logger for the ErrorLog field of http.Server,
// so listener faults surface as structured error entries. Flags are zero
// because zerolog supplies timestamps
func NewErrorLog(logger *log.Logger) *stdlog.Logger {
	w := &levelWriter{
		logger: logger.GetZerolog(),
		level:  zerolog.ErrorLevel,
	}
	return stdlog.New(w, "", 0)
}

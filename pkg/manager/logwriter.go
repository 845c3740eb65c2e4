package manager

import (
	"bytes"

	"github.com/rs/zerolog"
)

// logWriter forwards a worker subprocess's output into the gateway log,
// one line per log record.
type logWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
	buf    bytes.Buffer
}

func (lw *logWriter) Write(p []byte) (int, error) {
	lw.buf.Write(p)
	for {
		line, err := lw.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it buffered for the next write
			lw.buf.WriteString(line)
			break
		}
		if line = trimNewline(line); line != "" {
			lw.logger.WithLevel(lw.level).Msg(line)
		}
	}
	return len(p), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

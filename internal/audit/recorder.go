package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Recorder appends every delivery seen by the event consumer to a JSON-Lines
// file, one entry per line. The log is best effort: append failures are
// logged and never affect acknowledgement. The replay reader consumes it.
type Recorder struct {
	path string
	log  zerolog.Logger
	now  func() time.Time
}

func NewRecorder(path string, log zerolog.Logger) *Recorder {
	return &Recorder{path: path, log: log, now: time.Now}
}

type logEntry struct {
	AuditTimestamp string `json:"audit_timestamp"`
	EventContent   any    `json:"event_content"`
}

// Append writes one line for the given delivery body. Non-JSON bodies are
// skipped so the file stays machine readable line by line.
func (r *Recorder) Append(body []byte) {
	var content any
	if err := json.Unmarshal(body, &content); err != nil {
		r.log.Warn().Err(err).Msg("skipping non-JSON body in audit log")
		return
	}

	line, err := json.Marshal(logEntry{
		AuditTimestamp: r.now().Format(time.RFC3339),
		EventContent:   content,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode audit log entry")
		return
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Error().Err(err).Str("path", r.path).Msg("failed to open audit log")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.log.Error().Err(err).Str("path", r.path).Msg("failed to append audit log entry")
	}
}

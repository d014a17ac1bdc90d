package orchestrate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunLog appends one JSON line per finished run, failed or not. It is a
// flat operational record next to the sqlite audit trail, cheap to tail.
type RunLog struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

type runLogEntry struct {
	LoggedAt time.Time `json:"logged_at"`
	*RunResult
}

func NewRunLog(dir string, log *zap.Logger) *RunLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunLog{
		path: filepath.Join(dir, "runs.jsonl"),
		log:  log.Named("runlog"),
	}
}

// Append writes the result as one line. Logging failures are reported but
// never propagate; the audit store is the source of truth.
func (r *RunLog) Append(result *RunResult) {
	if r == nil || result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.log.Warn("run log dir create failed", zap.Error(err))
		return
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.log.Warn("run log open failed", zap.Error(err))
		return
	}
	defer f.Close()

	entry := runLogEntry{LoggedAt: time.Now().UTC(), RunResult: result}
	if err := json.NewEncoder(f).Encode(entry); err != nil {
		r.log.Warn("run log write failed", zap.Error(err))
	}
}

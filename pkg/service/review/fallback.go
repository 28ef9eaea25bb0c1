package review

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// fallbackRecord is one line in the durable escalation log
type fallbackRecord struct {
	TurnID      model.TurnID            `json:"turn_id"`
	CustomerID  string                  `json:"customer_id"`
	Priority    string                  `json:"priority"`
	Result      *model.ValidationResult `json:"result,omitempty"`
	RecordedAt  time.Time               `json:"recorded_at"`
	QueueError  string                  `json:"queue_error,omitempty"`
	Description string                  `json:"description"`
}

// FallbackLog is the last line of defense when the review queue itself is
// unavailable. Escalations append to a local JSONL file so no escalation
// is ever silently lost; an operator replays the file once the queue
// recovers. The guidance text itself is deliberately omitted from the
// record; the turn ID resolves it from the audit trail.
type FallbackLog struct {
	path string
	mu   sync.Mutex
}

// NewFallbackLog creates a durable JSONL escalation log at path
func NewFallbackLog(path string) (*FallbackLog, error) {
	if path == "" {
		return nil, goerr.New("fallback log path is required")
	}
	return &FallbackLog{path: path}, nil
}

// Record appends the failed escalation. The write is synchronous and
// fsynced; if even this fails the caller must surface the error.
func (l *FallbackLog) Record(ctx context.Context, req *interfaces.ReviewRequest, queueErr error) error {
	rec := fallbackRecord{
		TurnID:      req.TurnID,
		CustomerID:  req.CustomerID,
		Priority:    req.Priority.String(),
		Result:      req.Result,
		RecordedAt:  time.Now().UTC(),
		Description: "escalation could not be delivered to the review queue",
	}
	if queueErr != nil {
		rec.QueueError = queueErr.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal fallback record", goerr.V("turnID", req.TurnID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return goerr.Wrap(err, "failed to open fallback log", goerr.V("path", l.path))
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return goerr.Wrap(err, "failed to append fallback record", goerr.V("path", l.path))
	}
	if err := f.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync fallback log", goerr.V("path", l.path))
	}

	return nil
}

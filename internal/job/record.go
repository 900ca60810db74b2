// Package job implements the job record and in-memory registry: the
// canonical unit of work, its durable JSON snapshot, and the serialized
// mutation gate that keeps them consistent.
package job

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Status is one of the five states a job can be in. Transitions are
// monotone except queued→cancelled and queued/running→error.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether status is a terminal state: no further
// mutations are allowed except DownloadedAt.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// LogEntry is one line of a job's append-only log.
type LogEntry struct {
	Seq int    `json:"seq"`
	TS  string `json:"ts"`
	Msg string `json:"msg"`
}

// Payload is the immutable-after-init set of input parameters.
type Payload struct {
	FilePath     string                 `json:"file_path"`
	Language     string                 `json:"language"`
	Model        string                 `json:"model"`
	OriginalName string                 `json:"original_name"`
	Options      map[string]interface{} `json:"options"`
}

// Record is the canonical job unit.
type Record struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	Progress float64 `json:"progress"`

	CreatedAt      float64  `json:"created_at"`
	UpdatedAt      float64  `json:"updated_at"`
	StartedAt      *float64 `json:"started_at,omitempty"`
	FinishedAt     *float64 `json:"finished_at,omitempty"`
	LastHeartbeat  float64  `json:"last_heartbeat"`
	DownloadedAt   *float64 `json:"downloaded_at,omitempty"`

	Payload Payload `json:"payload"`

	Logs   []LogEntry `json:"logs"`
	LogSeq int        `json:"log_seq"`

	Error *string `json:"error,omitempty"`

	ResultPath   *string `json:"result_path,omitempty"`
	DownloadName *string `json:"download_name,omitempty"`

	CancelRequested bool `json:"cancel_requested"`
}

// Clone returns a deep-enough copy for safe hand-off outside the registry
// lock (logs slice and payload options map are copied; the pointer fields
// are shared with the live record, which the registry only ever replaces,
// never writes through).
func (r *Record) Clone() *Record {
	cp := *r
	cp.Logs = append([]LogEntry(nil), r.Logs...)
	if r.Payload.Options != nil {
		opts := make(map[string]interface{}, len(r.Payload.Options))
		for k, v := range r.Payload.Options {
			opts[k] = v
		}
		cp.Payload.Options = opts
	}
	return &cp
}

// NewID returns an opaque 128-bit identifier rendered as hex, matching the
// canonical uuid4-hex form with no dashes.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

package job

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"sttstudio/internal/store"
)

// Registry is the in-memory job-id → Record map plus the dirty set of ids
// awaiting a meta flush. A single coarse
// mutex guards all mutations; critical sections are O(1) and never touch
// disk.
type Registry struct {
	metaDir string

	mu      sync.Mutex
	records map[string]*Record

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	logMaxLines int
}

// NewRegistry creates an empty registry rooted at metaDir.
func NewRegistry(metaDir string, logMaxLines int) *Registry {
	return &Registry{
		metaDir:     metaDir,
		records:     make(map[string]*Record),
		dirty:       make(map[string]struct{}),
		logMaxLines: logMaxLines,
	}
}

// Init creates a new queued record for id with the given payload.
func (r *Registry) Init(id string, payload Payload) *Record {
	now := nowSeconds()
	rec := &Record{
		ID:            id,
		Status:        StatusQueued,
		Progress:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastHeartbeat: now,
		Payload:       payload,
		Logs:          nil,
	}
	r.mu.Lock()
	r.records[id] = rec
	r.mu.Unlock()
	r.markDirty(id)
	return rec.Clone()
}

// Get resolves a record from memory first; on miss it rehydrates from
// meta/<id>.json. Returns nil if neither exists.
func (r *Registry) Get(id string) *Record {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		r.mu.Unlock()
		return rec.Clone()
	}
	r.mu.Unlock()

	data, err := os.ReadFile(r.metaPath(id))
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	r.mu.Lock()
	if _, ok := r.records[id]; !ok {
		r.records[id] = &rec
	}
	existing := r.records[id].Clone()
	r.mu.Unlock()
	return existing
}

// Mutate runs fn against the live record under the registry lock, then
// refreshes updated_at/last_heartbeat and marks the id dirty. fn must not
// perform I/O: critical sections are O(1).
func (r *Registry) Mutate(id string, fn func(rec *Record)) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	fn(rec)
	now := nowSeconds()
	rec.UpdatedAt = now
	rec.LastHeartbeat = now
	r.mu.Unlock()
	r.markDirty(id)
	return true
}

// Update applies a patch-style set of field setters (each a mutator) in one
// mutation, used by the engine for status/progress/result transitions.
func (r *Registry) Update(id string, setters ...func(*Record)) bool {
	return r.Mutate(id, func(rec *Record) {
		for _, set := range setters {
			set(rec)
		}
	})
}

// TouchHeartbeat refreshes last_heartbeat and updated_at without any other
// field change.
func (r *Registry) TouchHeartbeat(id string) {
	r.Mutate(id, func(rec *Record) {})
}

// AppendLog strips CRs/LFs, assigns the next log_seq (strictly increasing
// per job), and truncates the in-memory log to LOG_MAX_LINES.
func (r *Registry) AppendLog(id, message string) {
	message = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(message))
	if message == "" {
		return
	}
	r.Mutate(id, func(rec *Record) {
		rec.LogSeq++
		rec.Logs = append(rec.Logs, LogEntry{
			Seq: rec.LogSeq,
			TS:  time.Now().Format("15:04:05"),
			Msg: message,
		})
		if len(rec.Logs) > r.logMaxLines {
			rec.Logs = rec.Logs[len(rec.Logs)-r.logMaxLines:]
		}
	})
}

// Delete removes a record from memory (called by the janitor after purge).
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
	r.dirtyMu.Lock()
	delete(r.dirty, id)
	r.dirtyMu.Unlock()
}

// IDs returns a snapshot of every known id.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) markDirty(id string) {
	r.dirtyMu.Lock()
	r.dirty[id] = struct{}{}
	r.dirtyMu.Unlock()
}

// swapDirty atomically empties the dirty set and returns its prior contents.
func (r *Registry) swapDirty() []string {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	if len(r.dirty) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	r.dirty = make(map[string]struct{})
	return ids
}

func (r *Registry) metaPath(id string) string {
	return r.metaDir + string(os.PathSeparator) + id + ".json"
}

// Rehydrate loads every meta/*.json file into memory at boot, the
// bootstrap recovery path. It returns the ids of records whose status is
// queued or running and not cancel_requested — the caller re-enqueues
// these.
func (r *Registry) Rehydrate() ([]string, error) {
	entries, err := os.ReadDir(r.metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var resumable []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(r.metaDir + string(os.PathSeparator) + entry.Name())
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.ID == "" {
			continue
		}
		r.mu.Lock()
		r.records[rec.ID] = &rec
		r.mu.Unlock()

		if (rec.Status == StatusQueued || rec.Status == StatusRunning) && !rec.CancelRequested {
			resumable = append(resumable, rec.ID)
		}
	}
	return resumable, nil
}

// snapshotForMeta truncates logs to META_LOG_MAX_LINES before persisting,
// reducing I/O on the durable copy.
func snapshotForMeta(rec *Record, metaLogMaxLines int) *Record {
	snap := rec.Clone()
	if len(snap.Logs) > metaLogMaxLines {
		snap.Logs = snap.Logs[len(snap.Logs)-metaLogMaxLines:]
	}
	return snap
}

// flushOne writes one record's durable snapshot atomically.
func (r *Registry) flushOne(id string, metaLogMaxLines int) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	snap := snapshotForMeta(rec, metaLogMaxLines)
	r.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return store.AtomicWriteText(r.metaPath(id), string(data))
}

// Package janitor implements the background consistency sweep: a
// heartbeat watchdog that errors stalled jobs, and a retention reaper that
// purges terminal-state artifacts.
package janitor

import (
	"context"
	"time"

	"sttstudio/internal/config"
	"sttstudio/internal/job"
	"sttstudio/internal/store"
	"sttstudio/pkg/logger"
)

// Janitor runs both responsibilities on one ticking loop.
type Janitor struct {
	reg   *job.Registry
	store *store.Store
	cfg   *config.Config
}

// New builds a Janitor bound to the shared registry and store.
func New(reg *job.Registry, st *store.Store, cfg *config.Config) *Janitor {
	return &Janitor{reg: reg, store: st, cfg: cfg}
}

// Run ticks every CLEANUP_INTERVAL_SECONDS until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := time.Duration(j.cfg.CleanupIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) tick() {
	now := nowSeconds()
	for _, id := range j.reg.IDs() {
		rec := j.reg.Get(id)
		if rec == nil {
			continue
		}
		if j.watchdog(id, rec, now) {
			continue
		}
		j.reap(id, rec, now)
	}
}

// watchdog transitions stalled queued/running jobs to error. Returns true
// if it acted on the record.
func (j *Janitor) watchdog(id string, rec *job.Record, now float64) bool {
	if rec.Status != job.StatusQueued && rec.Status != job.StatusRunning {
		return false
	}
	if now-rec.LastHeartbeat <= float64(j.cfg.OrphanRetentionSeconds) {
		return false
	}

	logger.Error("heartbeat timeout, erroring job", "job_id", id)
	msg := "heartbeat timeout"
	j.reg.Update(id, func(r *job.Record) {
		r.Status = job.StatusError
		r.Error = &msg
		finished := now
		r.FinishedAt = &finished
	})
	store.SafeUnlink(j.store.LockPath(id))
	return true
}

// reap purges terminal-state jobs past their retention window.
func (j *Janitor) reap(id string, rec *job.Record, now float64) {
	if !j.cfg.AutoCleanupEnabled {
		return
	}
	shouldPurge := false

	switch rec.Status {
	case job.StatusDone:
		if j.cfg.AutoCleanupAfterDownload && rec.DownloadedAt != nil &&
			now-*rec.DownloadedAt >= float64(j.cfg.DownloadGraceSeconds) {
			shouldPurge = true
		}
		if now-rec.UpdatedAt >= float64(j.cfg.DoneRetentionSeconds) {
			shouldPurge = true
		}
	case job.StatusError, job.StatusCancelled:
		if now-rec.UpdatedAt >= float64(j.cfg.ErrorRetentionSeconds) {
			shouldPurge = true
		}
	}

	if !shouldPurge {
		return
	}

	logger.Info("purging job artifacts", "job_id", id, "status", rec.Status)
	passes := j.cfg.SecureDeletePasses
	store.SecureRemoveTree(j.store.UploadDir(id), passes)
	store.SecureRemoveTree(j.store.TmpDir(id), passes)
	store.SecureDeleteFile(j.store.OutputPath(id), passes)
	store.SecureDeleteFile(j.store.MetaPath(id), passes)
	store.SafeUnlink(j.store.LockPath(id))
	j.reg.Delete(id)
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

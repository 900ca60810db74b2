package job

import (
	"context"
	"time"

	"sttstudio/pkg/logger"
)

// Flusher periodically drains the registry's dirty set to durable meta
// files, and performs one final flush-all on shutdown.
type Flusher struct {
	reg             *Registry
	interval        time.Duration
	metaLogMaxLines int
}

// NewFlusher builds a Flusher bound to reg.
func NewFlusher(reg *Registry, interval time.Duration, metaLogMaxLines int) *Flusher {
	return &Flusher{reg: reg, interval: interval, metaLogMaxLines: metaLogMaxLines}
}

// Run wakes every interval, swaps the dirty set, and flushes each id. It
// returns once ctx is cancelled, after performing a final flush-all so no
// mutation made before shutdown is lost.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.drain()
		case <-ctx.Done():
			f.FlushAll()
			return
		}
	}
}

func (f *Flusher) drain() {
	for _, id := range f.reg.swapDirty() {
		if err := f.reg.flushOne(id, f.metaLogMaxLines); err != nil {
			logger.Error("meta flush failed", "job_id", id, "error", err)
		}
	}
}

// FlushAll writes every known record regardless of dirty state, used on
// graceful shutdown.
func (f *Flusher) FlushAll() {
	for _, id := range f.reg.IDs() {
		if err := f.reg.flushOne(id, f.metaLogMaxLines); err != nil {
			logger.Error("final meta flush failed", "job_id", id, "error", err)
		}
	}
}

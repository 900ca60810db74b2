package engine

import (
	"context"
	"time"

	"sttstudio/internal/audio"
	"sttstudio/internal/config"
	"sttstudio/internal/job"
	"sttstudio/internal/queue"
	"sttstudio/internal/segmentation"
	"sttstudio/internal/store"
	"sttstudio/internal/transcribe"
	"sttstudio/pkg/logger"
)

// New wires the engine's collaborators from config: the audio adapters,
// the default energy-based VAD engine, the shared HTTP client, and both
// transcription providers.
func New(cfg *config.Config, reg *job.Registry, st *store.Store) *Engine {
	client := transcribe.NewClient(time.Duration(cfg.RequestTimeoutSeconds)*time.Second, cfg.RequestRetryTimes)
	general := transcribe.NewGeneralProvider(client, cfg.DeepgramBaseURL, cfg.DeepgramAPIKey)
	hf := transcribe.NewHFProvider(client, cfg.HFKotobaURL, cfg.HFToken)

	return &Engine{
		Registry:   reg,
		Store:      st,
		Cfg:        cfg,
		Normalizer: audio.Normalizer{},
		Prober:     audio.Prober{},
		VAD:        segmentation.NewEnergyVAD(),
		HTTPClient: client,
		General:    general,
		HF:         hf,
	}
}

// Bootstrap builds the engine and its queue, rehydrates the registry from
// durable meta/ snapshots, re-enqueues every resumable job, and starts the
// worker pool.
func Bootstrap(cfg *config.Config, reg *job.Registry, st *store.Store) (*Engine, *queue.Queue, error) {
	eng := New(cfg, reg, st)
	q := queue.New(eng, cfg.JobWorkers, cfg.LocksDir())

	resumable, err := reg.Rehydrate()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range resumable {
		logger.Info("re-enqueuing resumable job from bootstrap", "job_id", id)
		q.Enqueue(id)
	}

	q.Start()
	probeUpstream(eng)
	return eng, q, nil
}

// probeUpstream does a best-effort, non-fatal reachability check against
// the general transcription API so a misconfigured endpoint shows up in
// logs at startup instead of only on the first job's first failure.
func probeUpstream(eng *Engine) {
	if eng.Cfg.DeepgramAPIKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := eng.HTTPClient.Get(ctx, eng.Cfg.DeepgramBaseURL+"/projects")
	if err != nil {
		logger.Debug("upstream reachability probe failed", "error", err)
		return
	}
	defer resp.Body.Close()
	logger.Debug("upstream reachability probe", "status", resp.StatusCode)
}

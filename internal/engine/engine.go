// Package engine wires the registry, store, segmentation pipeline,
// transcription fan-out, and subtitle assembly into the job pipeline,
// and implements queue.Processor.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"sttstudio/internal/config"
	"sttstudio/internal/interfaces"
	"sttstudio/internal/job"
	"sttstudio/internal/queue"
	"sttstudio/internal/segmentation"
	"sttstudio/internal/store"
	"sttstudio/internal/transcribe"
	"sttstudio/pkg/logger"
)

// Engine runs one job end to end.
type Engine struct {
	Registry *job.Registry
	Store    *store.Store
	Cfg      *config.Config

	Normalizer interfaces.Normalizer
	Prober     interfaces.Prober
	VAD        interfaces.VADEngine

	HTTPClient *transcribe.Client
	General    interfaces.Provider
	HF         interfaces.Provider
}

var _ queue.Processor = (*Engine)(nil)

const maxErrorLen = 4000

// ProcessJob runs normalize, segment, transcribe, assemble for one id.
func (e *Engine) ProcessJob(ctx context.Context, jobID string, registerProcess func(*exec.Cmd)) error {
	rec := e.Registry.Get(jobID)
	if rec == nil {
		return nil
	}
	if rec.Status.Terminal() {
		return nil
	}
	if rec.CancelRequested {
		e.cancel(jobID, "queued cancellation observed at dispatch")
		return nil
	}

	if _, err := os.Stat(rec.Payload.FilePath); err != nil {
		e.fail(jobID, "input file missing or already cleaned up")
		return nil
	}

	e.Registry.Update(jobID, func(r *job.Record) {
		r.Status = job.StatusRunning
		r.Progress = 1
		started := nowSeconds()
		r.StartedAt = &started
	})
	e.Registry.AppendLog(jobID, fmt.Sprintf("job started | model=%s language=%s", rec.Payload.Model, rec.Payload.Language))

	defer func() {
		store.SecureRemoveTree(e.Store.TmpDir(jobID), e.Cfg.SecureDeletePasses)
	}()

	wavPath := e.Store.NormalizedWav(jobID)
	if err := e.Normalizer.Normalize(ctx, rec.Payload.FilePath, wavPath); err != nil {
		e.fail(jobID, "audio normalization failed: "+err.Error())
		return nil
	}
	e.Registry.TouchHeartbeat(jobID)
	e.Registry.Update(jobID, func(r *job.Record) { r.Progress = 8 })
	e.Registry.AppendLog(jobID, "audio normalized (16k/mono/wav)")

	vadParams := segmentation.ResolveVADParams(e.Cfg, rec.Payload.Options)
	pipeline := &segmentation.Pipeline{
		Prober:                      e.Prober,
		VAD:                         e.VAD,
		MaxSegmentSeconds:           e.Cfg.MaxSegmentSeconds,
		MinSegmentSeconds:           e.Cfg.MinSegmentSeconds,
		MinTranscribeSegmentSeconds: optionOrDefault(rec.Payload.Options, "min_transcribe_segment_seconds", e.Cfg.MinTranscribeSegmentSeconds, 0.2, 2.0),
		ShortSegmentMergeGapSeconds: optionOrDefault(rec.Payload.Options, "short_segment_merge_gap_seconds", e.Cfg.ShortSegmentMergeGapSeconds, 0.0, 1.0),
	}

	segments, forcedSplits, merges, drops, err := pipeline.Run(ctx, wavPath, vadParams)
	if err != nil {
		e.fail(jobID, "voice activity segmentation failed: "+err.Error())
		return nil
	}
	e.Registry.TouchHeartbeat(jobID)
	if len(segments) == 0 {
		e.fail(jobID, "no valid speech segments detected")
		return nil
	}

	e.Registry.AppendLog(jobID, fmt.Sprintf(
		"vad complete: %d segments | forced-split %d | merged-short %d | dropped-short %d",
		len(segments), forcedSplits, merges, drops))
	e.Registry.Update(jobID, func(r *job.Record) { r.Progress = 14 })

	if rec = e.Registry.Get(jobID); rec.CancelRequested {
		e.cancel(jobID, "cancellation observed before transcription fan-out")
		return nil
	}

	if err := os.MkdirAll(e.Store.SegmentsDir(jobID), 0o755); err != nil {
		e.fail(jobID, "failed to prepare segment workspace: "+err.Error())
		return nil
	}

	fanout := &transcribe.Fanout{
		Client:          e.HTTPClient,
		General:         e.General,
		HF:              e.HF,
		Concurrency:     e.Cfg.Concurrency,
		Model:           rec.Payload.Model,
		Language:        rec.Payload.Language,
		Options:         stringifyOptions(rec.Payload.Options),
		SegmentsDir:     e.Store.SegmentsDir(jobID),
		SourceWav:       wavPath,
		RegisterProcess: registerProcess,
		OnProgress: func(done, total int) {
			progress := 14 + 80*float64(done)/float64(total)
			// completions race; progress must never go backwards
			e.Registry.Update(jobID, func(r *job.Record) {
				if progress > r.Progress {
					r.Progress = progress
				}
			})
		},
		Cancelled: func() bool {
			r := e.Registry.Get(jobID)
			return r != nil && r.CancelRequested
		},
	}

	results, wasCancelled, err := fanout.Run(ctx, toInterfaceSegments(segments))
	if err != nil {
		e.fail(jobID, "transcription fan-out failed: "+err.Error())
		return nil
	}
	if wasCancelled {
		e.cancel(jobID, "cancellation observed during transcription")
		return nil
	}

	okCount, failCount, emptyCount := classify(results)
	for _, r := range results {
		if r.Outcome == transcribe.OutcomeHardFailure {
			e.Registry.AppendLog(jobID, fmt.Sprintf("segment #%d failed: %s", r.Index, truncate(r.Reason, 180)))
		}
	}
	if okCount == 0 {
		e.fail(jobID, fmt.Sprintf("transcription failed entirely (%d segments failed)", failCount+emptyCount))
		return nil
	}
	if emptyCount > 0 {
		e.Registry.AppendLog(jobID, fmt.Sprintf("empty transcripts: %d segments (silence/noise), ignored", emptyCount))
	}
	if failCount > 0 {
		e.Registry.AppendLog(jobID, fmt.Sprintf("segment failures: %d, skipped", failCount))
	}

	cues := transcribe.AssembleCues(results, rec.Payload.Language, rec.Payload.Model)
	srtText := transcribe.SerializeSRT(cues)

	outPath := e.Store.OutputPath(jobID)
	if err := store.AtomicWriteText(outPath, srtText); err != nil {
		e.fail(jobID, "failed to write subtitle output: "+err.Error())
		return nil
	}

	downloadName := downloadNameFor(rec.Payload.OriginalName)
	e.Registry.Update(jobID, func(r *job.Record) {
		r.Status = job.StatusDone
		r.Progress = 100
		r.ResultPath = &outPath
		r.DownloadName = &downloadName
		finished := nowSeconds()
		r.FinishedAt = &finished
	})
	e.Registry.AppendLog(jobID, "job complete, subtitle generated")
	return nil
}

func (e *Engine) fail(jobID, message string) {
	message = truncate(message, maxErrorLen)
	logMsg := truncate(message, 180)
	logger.JobFailed(jobID, 0, fmt.Errorf("%s", message))
	e.Registry.Update(jobID, func(r *job.Record) {
		r.Status = job.StatusError
		r.Error = &message
		finished := nowSeconds()
		r.FinishedAt = &finished
	})
	e.Registry.AppendLog(jobID, "job failed: "+logMsg)
}

func (e *Engine) cancel(jobID, reason string) {
	e.Registry.Update(jobID, func(r *job.Record) {
		r.Status = job.StatusCancelled
		finished := nowSeconds()
		r.FinishedAt = &finished
	})
	e.Registry.AppendLog(jobID, "cancelled: "+reason)
}

func classify(results []transcribe.SegmentResult) (ok, fail, empty int) {
	for _, r := range results {
		switch r.Outcome {
		case transcribe.OutcomeOK:
			ok++
		case transcribe.OutcomeSoftFailure:
			empty++
		default:
			fail++
		}
	}
	return
}

func toInterfaceSegments(segments []interfaces.Segment) []interfaces.Segment {
	return segments
}

func downloadNameFor(originalName string) string {
	if originalName == "" {
		return "subtitle.srt"
	}
	ext := filepath.Ext(originalName)
	stem := originalName[:len(originalName)-len(ext)]
	if stem == "" {
		stem = "subtitle"
	}
	return stem + ".srt"
}

func stringifyOptions(options map[string]interface{}) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		case float64:
			out[k] = fmt.Sprintf("%g", val)
		case []interface{}:
			var joined string
			for i, item := range val {
				if i > 0 {
					joined += ","
				}
				joined += fmt.Sprintf("%v", item)
			}
			out[k] = joined
		}
	}
	return out
}

func optionOrDefault(options map[string]interface{}, key string, def, min, max float64) float64 {
	v, ok := options[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	if f < min {
		f = min
	}
	if f > max {
		f = max
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

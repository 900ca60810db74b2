package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"sttstudio/internal/interfaces"
	"sttstudio/pkg/binaries"
	"sttstudio/pkg/logger"
)

// Outcome classifies a segment's result: usable text, an expected empty
// (silence/noise), or a hard failure.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSoftFailure
	OutcomeHardFailure
)

// SegmentResult is one segment's fan-out outcome. Code carries the
// upstream HTTP status on a provider failure, 0 otherwise.
type SegmentResult struct {
	Index      int
	Start      float64
	End        float64
	Transcript string
	Outcome    Outcome
	Reason     string
	Code       int
}

// Fanout runs the bounded parallel transcription pool: extract, dispatch,
// empty-retry, normalize, cleanup, for every segment.
type Fanout struct {
	Client      *Client
	General     interfaces.Provider
	HF          interfaces.Provider
	Concurrency int

	Model    string
	Language string
	Options  map[string]string

	SegmentsDir string
	SourceWav   string

	// OnProgress is called after each completion with done/total; used to
	// drive the job record's progress field (14 + 80*done/total).
	OnProgress func(done, total int)
	// Cancelled reports whether the job's cancel_requested flag is set,
	// checked before each dispatch and after each completion.
	Cancelled func() bool
	// RegisterProcess lets the caller track the ffmpeg subprocess cutting
	// a segment so it can be killed on shutdown.
	RegisterProcess func(*exec.Cmd)
}

// Run processes every segment and returns results sorted by
// (start, end, idx), the order cue assembly consumes. Returned bool is
// true if the job was cancelled mid-run.
func (f *Fanout) Run(ctx context.Context, segments []interfaces.Segment) ([]SegmentResult, bool, error) {
	if len(segments) == 0 {
		return nil, false, nil
	}

	total := len(segments)
	results := make([]SegmentResult, total)
	var doneCount int64
	var cancelled atomic.Bool

	sem := make(chan struct{}, f.Concurrency)
	var wg sync.WaitGroup

	// Segments are launched in order 0..launched-1, so on early cancellation
	// the launched prefix is contiguous and results[:launched] holds every
	// processed segment with nothing to trim.
	launched := 0
	for i, seg := range segments {
		if f.Cancelled != nil && f.Cancelled() {
			cancelled.Store(true)
			break
		}
		launched++
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, seg interfaces.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			res := f.processOne(ctx, idx, seg)
			results[idx] = res

			done := atomic.AddInt64(&doneCount, 1)
			if f.OnProgress != nil {
				f.OnProgress(int(done), total)
			}
			if f.Cancelled != nil && f.Cancelled() {
				cancelled.Store(true)
			}
		}(i, seg)
	}
	wg.Wait()

	processed := results[:launched]
	sortResults(processed)
	return processed, cancelled.Load(), nil
}

func sortResults(results []SegmentResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Start != results[j].Start {
			return results[i].Start < results[j].Start
		}
		if results[i].End != results[j].End {
			return results[i].End < results[j].End
		}
		return results[i].Index < results[j].Index
	})
}

func (f *Fanout) processOne(ctx context.Context, idx int, seg interfaces.Segment) SegmentResult {
	result := SegmentResult{Index: idx, Start: seg.Start, End: seg.End}

	segPath := filepath.Join(f.SegmentsDir, fmt.Sprintf("seg_%05d.wav", idx))
	if err := f.extractSegment(ctx, seg.Start, seg.End-seg.Start, segPath); err != nil {
		result.Outcome = OutcomeHardFailure
		result.Reason = truncate(err.Error(), 180)
		logger.Error("segment extraction failed", "index", idx, "error", err)
		return result
	}
	defer os.Remove(segPath)

	audio, err := os.ReadFile(segPath)
	if err != nil {
		result.Outcome = OutcomeHardFailure
		result.Reason = truncate(err.Error(), 180)
		return result
	}

	transcript, outcome, reason, code := f.dispatch(ctx, audio, seg)
	result.Transcript = transcript
	result.Outcome = outcome
	result.Reason = reason
	result.Code = code
	return result
}

// dispatch selects a provider, sends the segment, and performs the
// empty-transcript retry with a widened window (general provider only).
func (f *Fanout) dispatch(ctx context.Context, audio []byte, seg interfaces.Segment) (string, Outcome, string, int) {
	provider := SelectProvider(f.Model, f.General, f.HF)
	isHF := provider == f.HF

	text, err := provider.Transcribe(ctx, interfaces.TranscribeRequest{
		Audio: audio, Model: f.Model, Language: f.Language, Params: f.Options,
	})
	if err != nil {
		logger.Error("transcribe dispatch failed", "model", f.Model, "error", err)
		code := 0
		var ue *UpstreamError
		if errors.As(err, &ue) {
			code = ue.StatusCode
		}
		return "", OutcomeHardFailure, truncate(err.Error(), 180), code
	}

	normalized := Normalize(text, f.Language, f.Model)
	if normalized != "" {
		return normalized, OutcomeOK, "", 0
	}
	if isHF {
		return "", OutcomeSoftFailure, "HF_EMPTY_TRANSCRIPT", 0
	}
	if text == "" {
		retryText, retryErr := f.retryWidened(ctx, seg)
		if retryErr == nil {
			retryNormalized := Normalize(retryText, "auto", f.Model)
			if retryNormalized != "" {
				return retryNormalized, OutcomeOK, "", 0
			}
		}
		return "", OutcomeSoftFailure, "EMPTY_TRANSCRIPT", 0
	}
	return "", OutcomeSoftFailure, "EMPTY_AFTER_NORMALIZE", 0
}

// retryWidened recuts the segment with a symmetric pad keyed on its
// duration bucket and retries once against the general provider with
// language forced to auto.
func (f *Fanout) retryWidened(ctx context.Context, seg interfaces.Segment) (string, error) {
	pad := retryPad(seg.End - seg.Start)

	start := seg.Start - pad
	if start < 0 {
		start = 0
	}
	end := seg.End + pad

	retryPath := filepath.Join(f.SegmentsDir, fmt.Sprintf("retry_%d.wav", int(seg.Start*1000)))
	if err := f.extractSegment(ctx, start, end-start, retryPath); err != nil {
		return "", err
	}
	defer os.Remove(retryPath)

	audio, err := os.ReadFile(retryPath)
	if err != nil {
		return "", err
	}

	params := make(map[string]string, len(f.Options))
	for k, v := range f.Options {
		params[k] = v
	}
	return f.General.Transcribe(ctx, interfaces.TranscribeRequest{
		Audio: audio, Model: f.Model, Language: "auto", Params: params,
	})
}

// extractSegment cuts [start, start+dur) from the normalized WAV with a
// light dynamic-range-normalization filter, mono 16k PCM, time-precise
// -ss/-t placement. Subprocess bound: 180s.
func (f *Fanout) extractSegment(ctx context.Context, start, dur float64, outPath string) error {
	cutCtx, cancel := contextWithTimeout(ctx, 180)
	defer cancel()

	cmd := exec.CommandContext(cutCtx, binaries.FFmpeg(),
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(dur),
		"-i", f.SourceWav,
		"-af", "dynaudnorm=f=150:g=15",
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		outPath,
	)
	binaries.ConfigureSysProcAttr(cmd)
	if f.RegisterProcess != nil {
		f.RegisterProcess(cmd)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg segment cut: %w: %s", err, truncate(string(out), 300))
	}
	return nil
}

// retryPad is the symmetric widening applied when recutting an
// empty-transcript segment, keyed on its duration bucket.
func retryPad(dur float64) float64 {
	switch {
	case dur < 1.2:
		return 0.22
	case dur < 3.0:
		return 0.35
	default:
		return 0.50
	}
}

func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%.3f", s)
}

package segmentation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"sttstudio/internal/interfaces"
)

// readyGroup collapses concurrent "is the VAD engine ready" checks into a
// single probe so parallel jobs share one readiness check instead of
// racing their own.
var (
	readyMu    sync.RWMutex
	readyCache = make(map[string]bool)
	readyGroup singleflight.Group
)

func isEngineReady(key string, probe func() bool) bool {
	readyMu.RLock()
	if ready, ok := readyCache[key]; ok {
		readyMu.RUnlock()
		return ready
	}
	readyMu.RUnlock()

	result, _, _ := readyGroup.Do(key, func() (interface{}, error) {
		readyMu.RLock()
		if ready, ok := readyCache[key]; ok {
			readyMu.RUnlock()
			return ready, nil
		}
		readyMu.RUnlock()

		ready := probe()
		readyMu.Lock()
		readyCache[key] = ready
		readyMu.Unlock()
		return ready, nil
	})
	return result.(bool)
}

// EnergyVAD is the in-process default VADEngine: a frame-energy detector
// over 30ms windows with hangover padding. It satisfies interfaces.VADEngine
// without depending on an external inference runtime, and is the fallback
// path a Silero-class binding would otherwise replace behind the same
// interface.
const defaultEngineKey = "energy-vad"

type EnergyVAD struct{}

// NewEnergyVAD constructs the default engine and warms its readiness cache.
func NewEnergyVAD() *EnergyVAD {
	e := &EnergyVAD{}
	isEngineReady(defaultEngineKey, func() bool { return true })
	return e
}

// Detect runs frame-energy thresholding over 16kHz mono PCM and returns
// [start,end) spans in seconds.
func (e *EnergyVAD) Detect(ctx context.Context, pcm []float32, sampleRate int, params interfaces.VADParams) ([]interfaces.Segment, error) {
	if !isEngineReady(defaultEngineKey, func() bool { return true }) {
		return nil, fmt.Errorf("vad engine not ready")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	const frameMS = 30
	frameLen := sampleRate * frameMS / 1000
	if frameLen < 1 {
		frameLen = 1
	}

	minSilenceFrames := msToFrames(params.MinSilenceMS, frameMS)
	minSpeechFrames := msToFrames(params.MinSpeechMS, frameMS)
	padFrames := msToFrames(params.SpeechPadMS, frameMS)

	voiced := classifyFrames(pcm, frameLen, params.Threshold)
	spans := collapseFrames(voiced, minSilenceFrames, minSpeechFrames)

	segments := make([]interfaces.Segment, 0, len(spans))
	for _, sp := range spans {
		startFrame := sp[0] - padFrames
		endFrame := sp[1] + padFrames
		if startFrame < 0 {
			startFrame = 0
		}
		if endFrame > len(voiced) {
			endFrame = len(voiced)
		}
		start := float64(startFrame*frameLen) / float64(sampleRate)
		end := float64(endFrame*frameLen) / float64(sampleRate)
		if end > start {
			segments = append(segments, interfaces.Segment{Start: start, End: end})
		}
	}
	return segments, nil
}

func msToFrames(ms, frameMS int) int {
	if frameMS <= 0 {
		return 0
	}
	f := ms / frameMS
	if f < 1 {
		f = 1
	}
	return f
}

// classifyFrames returns, per frame, whether its RMS energy exceeds a
// threshold derived from the configured sensitivity (lower threshold
// value ⇒ more sensitive ⇒ classifies quieter frames as speech).
func classifyFrames(pcm []float32, frameLen int, threshold float64) []bool {
	nFrames := (len(pcm) + frameLen - 1) / frameLen
	voiced := make([]bool, nFrames)

	// threshold is a 0..1 sensitivity knob in the same space as the preset
	// table; map it onto an RMS cutoff empirically tuned against typical
	// speech/silence energy ratios in 16-bit PCM.
	cutoff := float32(threshold) * 0.05

	for i := 0; i < nFrames; i++ {
		start := i * frameLen
		end := start + frameLen
		if end > len(pcm) {
			end = len(pcm)
		}
		var sumSq float32
		for _, s := range pcm[start:end] {
			sumSq += s * s
		}
		n := float32(end - start)
		if n == 0 {
			continue
		}
		rms := sqrtf32(sumSq / n)
		voiced[i] = rms > cutoff
	}
	return voiced
}

func sqrtf32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 12; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// collapseFrames merges voiced runs separated by gaps of at most
// minSilenceFrames, then drops runs shorter than minSpeechFrames.
func collapseFrames(voiced []bool, minSilenceFrames, minSpeechFrames int) [][2]int {
	var raw [][2]int
	inRun := false
	runStart := 0
	for i, v := range voiced {
		if v && !inRun {
			inRun = true
			runStart = i
		} else if !v && inRun {
			inRun = false
			raw = append(raw, [2]int{runStart, i})
		}
	}
	if inRun {
		raw = append(raw, [2]int{runStart, len(voiced)})
	}
	if len(raw) == 0 {
		return nil
	}

	merged := [][2]int{raw[0]}
	for _, r := range raw[1:] {
		last := &merged[len(merged)-1]
		if r[0]-last[1] <= minSilenceFrames {
			last[1] = r[1]
		} else {
			merged = append(merged, r)
		}
	}

	out := merged[:0]
	for _, r := range merged {
		if r[1]-r[0] >= minSpeechFrames {
			out = append(out, r)
		}
	}
	return out
}

// Package segmentation implements the voice-activity segmentation
// pipeline: VAD detection over the normalized WAV, long-segment splitting,
// and short-segment merging.
package segmentation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"sttstudio/internal/interfaces"
)

// Pipeline wires a Prober and VADEngine into the three-stage segmentation
// algorithm. The Normalizer lives in this package's caller (the engine),
// which produces the mono 16kHz WAV this pipeline consumes.
type Pipeline struct {
	Prober interfaces.Prober
	VAD    interfaces.VADEngine

	MaxSegmentSeconds           float64
	MinSegmentSeconds           float64
	MinTranscribeSegmentSeconds float64
	ShortSegmentMergeGapSeconds float64
}

// Run executes Detect, Filter&Split, and Merge-Short in order and returns
// the final segment list plus counters for forced splits and merges/drops.
func (p *Pipeline) Run(ctx context.Context, wavPath string, params interfaces.VADParams) (segments []interfaces.Segment, forcedSplits, merges, drops int, err error) {
	duration, err := p.Prober.Duration(ctx, wavPath)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("probe duration: %w", err)
	}
	if duration <= 0.05 {
		return nil, 0, 0, 0, fmt.Errorf("audio duration %.3fs is at or below the silence floor", duration)
	}

	pcm, rate, err := LoadPCM(wavPath)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("load pcm: %w", err)
	}

	detected, err := p.VAD.Detect(ctx, pcm, rate, params)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("vad detect: %w", err)
	}
	if len(detected) == 0 {
		detected = []interfaces.Segment{{Start: 0, End: duration}}
	}

	filtered, restoredFallback := p.filterAndSplit(detected, duration)
	if restoredFallback {
		// the restored full-duration fallback (force-split if long) skips
		// the merge pass.
		return filtered, len(filtered) - 1, 0, 0, nil
	}

	final, m, d := p.mergeShort(filtered)
	forcedSplits = p.countForcedSplits(detected, filtered)
	return final, forcedSplits, m, d, nil
}

// filterAndSplit drops segments shorter than MinSegmentSeconds (restoring
// the full-duration fallback if that drops everything), then force-splits
// anything longer than MaxSegmentSeconds.
func (p *Pipeline) filterAndSplit(segments []interfaces.Segment, duration float64) (out []interfaces.Segment, restoredFallback bool) {
	kept := make([]interfaces.Segment, 0, len(segments))
	for _, s := range segments {
		if s.End-s.Start >= p.MinSegmentSeconds {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		kept = []interfaces.Segment{{Start: 0, End: duration}}
		restoredFallback = true
	}

	out = make([]interfaces.Segment, 0, len(kept))
	for _, s := range kept {
		out = append(out, p.forceSplit(s)...)
	}
	return out, restoredFallback
}

func (p *Pipeline) forceSplit(s interfaces.Segment) []interfaces.Segment {
	span := s.End - s.Start
	if span <= p.MaxSegmentSeconds {
		return []interfaces.Segment{s}
	}
	var pieces []interfaces.Segment
	cursor := s.Start
	for cursor < s.End {
		end := cursor + p.MaxSegmentSeconds
		if end > s.End {
			end = s.End
		}
		pieces = append(pieces, interfaces.Segment{Start: cursor, End: end})
		cursor = end
	}
	return pieces
}

func (p *Pipeline) countForcedSplits(before, after []interfaces.Segment) int {
	kept := 0
	for _, s := range before {
		if s.End-s.Start >= p.MinSegmentSeconds {
			kept++
		}
	}
	if len(after) <= kept {
		return 0
	}
	return len(after) - kept
}

// mergeShort is the quality pass over short segments: merged into their
// predecessor when close enough, kept if long enough on their own, or
// dropped; if everything would be dropped, the first segment survives.
func (p *Pipeline) mergeShort(segments []interfaces.Segment) (out []interfaces.Segment, merges, drops int) {
	sorted := append([]interfaces.Segment(nil), segments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	minKeepAlone := math.Max(0.22, p.MinTranscribeSegmentSeconds*0.6)

	for _, s := range sorted {
		dur := s.End - s.Start
		if dur >= p.MinTranscribeSegmentSeconds {
			out = append(out, s)
			continue
		}
		if len(out) > 0 {
			prev := &out[len(out)-1]
			gap := s.Start - prev.End
			mergedSpan := s.End - prev.Start
			if gap <= p.ShortSegmentMergeGapSeconds && mergedSpan <= p.MaxSegmentSeconds {
				prev.End = s.End
				merges++
				continue
			}
		}
		if dur >= minKeepAlone {
			out = append(out, s)
			continue
		}
		drops++
	}

	if len(out) == 0 && len(sorted) > 0 {
		out = []interfaces.Segment{sorted[0]}
		if drops > 0 {
			drops--
		}
	}
	return out, merges, drops
}

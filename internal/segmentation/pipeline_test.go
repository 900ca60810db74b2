package segmentation

import (
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttstudio/internal/interfaces"
)

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

type fakeVAD struct {
	segments []interfaces.Segment
	err      error
}

func (f fakeVAD) Detect(ctx context.Context, pcm []float32, sampleRate int, params interfaces.VADParams) ([]interfaces.Segment, error) {
	return f.segments, f.err
}

func writeSilentWav(t *testing.T, seconds float64) string {
	t.Helper()
	const sampleRate = 16000
	samples := int(seconds * float64(sampleRate))
	pcm := make([]int16, samples)

	path := t.TempDir() + "/in.wav"
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	dataSize := len(pcm) * 2
	riffSize := 36 + dataSize

	writeStr := func(s string) { f.WriteString(s) }
	writeU32 := func(v uint32) { binary.Write(f, binary.LittleEndian, v) }
	writeU16 := func(v uint16) { binary.Write(f, binary.LittleEndian, v) }

	writeStr("RIFF")
	writeU32(uint32(riffSize))
	writeStr("WAVE")
	writeStr("fmt ")
	writeU32(16)
	writeU16(1) // PCM
	writeU16(1) // mono
	writeU32(sampleRate)
	writeU32(sampleRate * 2)
	writeU16(2)
	writeU16(16)
	writeStr("data")
	writeU32(uint32(dataSize))
	for _, s := range pcm {
		writeU16(uint16(s))
	}
	return path
}

func TestPipelineRunFallsBackToFullDurationWhenVADFindsNothing(t *testing.T) {
	path := writeSilentWav(t, 2.0)
	p := &Pipeline{
		Prober:                      fakeProber{duration: 2.0},
		VAD:                         fakeVAD{segments: nil},
		MaxSegmentSeconds:           30,
		MinSegmentSeconds:           0.2,
		MinTranscribeSegmentSeconds: 0.5,
		ShortSegmentMergeGapSeconds: 0.3,
	}

	segs, forced, merges, drops, err := p.Run(context.Background(), path, interfaces.VADParams{})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.InDelta(t, 0, segs[0].Start, 1e-9)
	assert.InDelta(t, 2.0, segs[0].End, 1e-9)
	assert.Zero(t, forced)
	assert.Zero(t, merges)
	assert.Zero(t, drops)
}

func TestPipelineRunRejectsBelowSilenceFloor(t *testing.T) {
	path := writeSilentWav(t, 0.01)
	p := &Pipeline{Prober: fakeProber{duration: 0.01}, VAD: fakeVAD{}}

	_, _, _, _, err := p.Run(context.Background(), path, interfaces.VADParams{})
	assert.Error(t, err)
}

func TestPipelineForceSplitsLongSegment(t *testing.T) {
	p := &Pipeline{
		MaxSegmentSeconds:           10,
		MinSegmentSeconds:           0.2,
		MinTranscribeSegmentSeconds: 0.5,
		ShortSegmentMergeGapSeconds: 0.3,
	}
	pieces := p.forceSplit(interfaces.Segment{Start: 0, End: 25})
	require.Len(t, pieces, 3)
	assert.InDelta(t, 0, pieces[0].Start, 1e-9)
	assert.InDelta(t, 10, pieces[0].End, 1e-9)
	assert.InDelta(t, 25, pieces[2].End, 1e-9)
}

func TestPipelineMergeShortMergesIntoPredecessor(t *testing.T) {
	p := &Pipeline{
		MaxSegmentSeconds:           30,
		MinTranscribeSegmentSeconds: 1.0,
		ShortSegmentMergeGapSeconds: 0.5,
	}
	segments := []interfaces.Segment{
		{Start: 0, End: 2},
		{Start: 2.1, End: 2.4},
	}
	out, merges, drops := p.mergeShort(segments)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.4, out[0].End, 1e-9)
	assert.Equal(t, 1, merges)
	assert.Zero(t, drops)
}

func TestPipelineMergeShortKeepsSoleTinySegmentAsFallback(t *testing.T) {
	p := &Pipeline{
		MaxSegmentSeconds:           30,
		MinTranscribeSegmentSeconds: 1.0,
		ShortSegmentMergeGapSeconds: 0.1,
	}
	segments := []interfaces.Segment{{Start: 0, End: 0.05}}
	out, merges, drops := p.mergeShort(segments)
	require.Len(t, out, 1, "a sole segment always survives as the fallback")
	assert.Zero(t, merges)
	assert.Zero(t, drops)
}

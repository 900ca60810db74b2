package segmentation

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttstudio/internal/interfaces"
)

func tone(seconds float64, sampleRate int, amplitude float32) []float32 {
	n := int(seconds * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestEnergyVADDetectsLoudSpanAmongSilence(t *testing.T) {
	e := NewEnergyVAD()
	const sampleRate = 16000

	silence := make([]float32, int(0.5*sampleRate))
	speech := tone(0.5, sampleRate, 0.8)
	pcm := append(append(append([]float32{}, silence...), speech...), silence...)

	params := interfaces.VADParams{Threshold: 0.3, MinSilenceMS: 60, MinSpeechMS: 60, SpeechPadMS: 0}
	segs, err := e.Detect(context.Background(), pcm, sampleRate, params)
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	assert.InDelta(t, 0.5, segs[0].Start, 0.1)
	assert.InDelta(t, 1.0, segs[0].End, 0.1)
}

func TestEnergyVADReturnsNilForEmptyPCM(t *testing.T) {
	e := NewEnergyVAD()
	segs, err := e.Detect(context.Background(), nil, 16000, interfaces.VADParams{})
	require.NoError(t, err)
	assert.Nil(t, segs)
}

func TestEnergyVADRejectsInvalidSampleRate(t *testing.T) {
	e := NewEnergyVAD()
	_, err := e.Detect(context.Background(), []float32{0.1}, 0, interfaces.VADParams{})
	assert.Error(t, err)
}

func TestCollapseFramesMergesRunsAcrossGapsUpToMinSilence(t *testing.T) {
	voiced := []bool{true, true, false, false, true, true, false, true}
	spans := collapseFrames(voiced, 2, 2)
	require.Len(t, spans, 1)
	assert.Equal(t, [2]int{0, 8}, spans[0])
}

func TestCollapseFramesDropsAllTooShort(t *testing.T) {
	voiced := []bool{true, false, true}
	spans := collapseFrames(voiced, 0, 3)
	assert.Empty(t, spans)
}

package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sttstudio/internal/config"
)

func testVADConfig() *config.Config {
	return &config.Config{
		VADPresetDefault: "general",
		VADPresets: map[string]config.VADPreset{
			"general": {Threshold: 0.55, MinSilenceMS: 420, MinSpeechMS: 240, SpeechPadMS: 110},
			"asmr":    {Threshold: 0.35, MinSilenceMS: 300, MinSpeechMS: 140, SpeechPadMS: 180},
			"mixed":   {Threshold: 0.45, MinSilenceMS: 360, MinSpeechMS: 180, SpeechPadMS: 140},
		},
	}
}

func TestResolveVADParamsDefaultsToConfiguredPreset(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), nil)
	assert.Equal(t, 0.55, params.Threshold)
	assert.Equal(t, 420, params.MinSilenceMS)
}

func TestResolveVADParamsHonorsExplicitPreset(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{"vad_preset": "asmr"})
	assert.Equal(t, 0.35, params.Threshold)
	assert.Equal(t, 180, params.SpeechPadMS)
}

func TestResolveVADParamsMapsLegacyProfileAlias(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{"vad_profile": "balanced"})
	assert.Equal(t, 0.55, params.Threshold)
}

func TestResolveVADParamsExplicitOverridesWinOverPreset(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{
		"vad_preset":    "general",
		"vad_threshold": 0.9,
	})
	assert.Equal(t, 0.9, params.Threshold)
	assert.Equal(t, 420, params.MinSilenceMS)
}

func TestResolveVADParamsLegacyUtteranceSplitSetsMinSilenceMS(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{"utterance_split": 1.5})
	assert.Equal(t, 1500, params.MinSilenceMS)
}

func TestResolveVADParamsClampsOutOfRangeOverrides(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{
		"vad_threshold":      5.0,
		"vad_min_silence_ms": 10.0,
		"vad_min_speech_ms":  99999.0,
		"vad_speech_pad_ms":  -50.0,
	})
	assert.Equal(t, 0.95, params.Threshold)
	assert.Equal(t, 50, params.MinSilenceMS)
	assert.Equal(t, 3000, params.MinSpeechMS)
	assert.Equal(t, 0, params.SpeechPadMS)
}

func TestResolveVADParamsClampsLegacyUtteranceSplit(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{"utterance_split": 100.0})
	assert.Equal(t, 3000, params.MinSilenceMS)
}

func TestResolveVADParamsUnknownPresetFallsBackToDefault(t *testing.T) {
	params := ResolveVADParams(testVADConfig(), map[string]interface{}{"vad_preset": "nonexistent"})
	assert.Equal(t, 0.55, params.Threshold)
}

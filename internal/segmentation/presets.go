package segmentation

import (
	"strings"

	"sttstudio/internal/config"
	"sttstudio/internal/interfaces"
)

// legacyProfileAlias maps the deprecated vad_profile values onto the
// current preset names.
var legacyProfileAlias = map[string]string{
	"asmr":     "asmr",
	"balanced": "general",
	"general":  "general",
}

// ResolveVADParams builds the effective VAD tunables from the configured
// preset, any individual overrides in options, and the legacy
// vad_profile/utterance_split knobs, in that precedence order.
func ResolveVADParams(cfg *config.Config, options map[string]interface{}) interfaces.VADParams {
	presetName := strings.ToLower(cfg.VADPresetDefault)
	if v, ok := stringOption(options, "vad_preset"); ok {
		presetName = strings.ToLower(v)
	}
	if v, ok := stringOption(options, "vad_profile"); ok {
		if mapped, ok := legacyProfileAlias[strings.ToLower(v)]; ok {
			presetName = mapped
		}
	}

	preset, ok := cfg.VADPresets[presetName]
	if !ok {
		preset = cfg.VADPresets[cfg.VADPresetDefault]
	}

	params := interfaces.VADParams{
		Threshold:    preset.Threshold,
		MinSilenceMS: preset.MinSilenceMS,
		MinSpeechMS:  preset.MinSpeechMS,
		SpeechPadMS:  preset.SpeechPadMS,
	}

	if v, ok := floatOption(options, "vad_threshold"); ok {
		params.Threshold = clamp(v, 0.1, 0.95)
	}
	if v, ok := floatOption(options, "vad_min_silence_ms"); ok {
		params.MinSilenceMS = int(clamp(v, 50, 3000))
	}
	if v, ok := floatOption(options, "vad_min_speech_ms"); ok {
		params.MinSpeechMS = int(clamp(v, 50, 3000))
	}
	if v, ok := floatOption(options, "vad_speech_pad_ms"); ok {
		params.SpeechPadMS = int(clamp(v, 0, 1000))
	}
	// legacy utterance_split (seconds) maps to min_silence_ms.
	if v, ok := floatOption(options, "utterance_split"); ok {
		params.MinSilenceMS = int(clamp(v*1000, 50, 3000))
	}

	return params
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func stringOption(options map[string]interface{}, key string) (string, bool) {
	v, ok := options[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func floatOption(options map[string]interface{}, key string) (float64, bool) {
	v, ok := options[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Package interfaces centralizes the contracts for the studio's external
// collaborators: the audio transcoder/prober, the VAD inference library,
// and the two upstream transcription providers.
// Concrete adapters live in their owning packages; this package exists so
// the engine depends on behavior, not on a specific binary or SDK.
package interfaces

import "context"

// Prober reports the duration of a media file, shelling out to an
// ffprobe-class tool.
type Prober interface {
	Duration(ctx context.Context, path string) (seconds float64, err error)
}

// Normalizer transcodes arbitrary input media into mono 16kHz PCM WAV,
// shelling out to an ffmpeg-class tool.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// Segment is a single [Start, End) span in seconds produced by VAD.
type Segment struct {
	Start float64
	End   float64
}

// VADParams bundles the tunables a VAD engine accepts.
type VADParams struct {
	Threshold    float64
	MinSilenceMS int
	MinSpeechMS  int
	SpeechPadMS  int
}

// VADEngine detects speech spans in a mono 16kHz PCM signal.
type VADEngine interface {
	Detect(ctx context.Context, pcm []float32, sampleRate int, params VADParams) ([]Segment, error)
}

// TranscribeRequest is the normalized input every provider adapter accepts.
type TranscribeRequest struct {
	Audio    []byte
	Model    string
	Language string
	Params   map[string]string
}

// Provider transcribes one audio segment against a remote upstream API
// (the general provider or the HF-class endpoint).
type Provider interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (transcript string, err error)
}

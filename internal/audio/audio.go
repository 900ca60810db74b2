// Package audio implements the two external tool adapters the pipeline
// leans on: the ffmpeg-class normalizer and the ffprobe-class duration
// prober.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sttstudio/pkg/binaries"
)

// Prober shells out to ffprobe for container duration, bound to 30s.
type Prober struct{}

func (Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaries.FFprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", out, err)
	}
	return seconds, nil
}

// Normalizer shells out to ffmpeg to transcode arbitrary input media into
// mono 16kHz 16-bit PCM WAV. Failure is
// fatal for the job.
type Normalizer struct{}

func (Normalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 900*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaries.FFmpeg(),
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	)
	binaries.ConfigureSysProcAttr(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg normalize: %w: %s", err, truncateTail(string(out), 300))
	}
	return nil
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

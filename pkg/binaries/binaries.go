// Package binaries resolves paths to the two external executables the
// studio shells out to: ffmpeg for normalization/transcoding and ffprobe
// for duration/format probing.
package binaries

import "os"

func resolve(envKey, fallback string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return fallback
}

// FFmpeg returns the configured ffmpeg executable path.
func FFmpeg() string {
	return resolve("STUDIO_FFMPEG_BIN", "ffmpeg")
}

// FFprobe returns the configured ffprobe executable path.
func FFprobe() string {
	return resolve("STUDIO_FFPROBE_BIN", "ffprobe")
}

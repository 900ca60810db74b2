// Package config loads the studio's tunables from the environment:
// a .env file for local development, then environment variables, all
// bound through viper; an optional studio.yaml supplies values for keys
// the environment does not set.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// VADPreset is a named bundle of VAD tunables selectable by a single option.
type VADPreset struct {
	Threshold    float64
	MinSilenceMS int
	MinSpeechMS  int
	SpeechPadMS  int
}

// Config holds every tunable the studio exposes.
type Config struct {
	Host string
	Port string

	DataRoot string // parent of uploads/ tmp/ outputs/ meta/ locks/

	APIAuthToken string // empty disables token gating

	DeepgramAPIKey  string
	DeepgramBaseURL string
	HFToken         string
	HFKotobaURL     string

	MaxUploadMB int

	Concurrency int // segment-level fan-out (1-64)
	JobWorkers  int // concurrent job workers (1-8)

	RequestTimeoutSeconds int // 10-600
	RequestRetryTimes     int // 0-6

	AutoCleanupEnabled       bool
	CleanupIntervalSeconds   int
	DoneRetentionSeconds     int
	ErrorRetentionSeconds    int
	OrphanRetentionSeconds   int
	AutoCleanupAfterDownload bool
	DownloadGraceSeconds     int
	SecureDeletePasses       int

	DefaultModel    string
	SupportedLangs  map[string]bool
	SupportedModels map[string]bool

	MaxSegmentSeconds           float64
	MinSegmentSeconds           float64
	MinTranscribeSegmentSeconds float64
	ShortSegmentMergeGapSeconds float64

	VADPresetDefault string
	VADPresets       map[string]VADPreset

	MetaFlushIntervalSeconds time.Duration
	LogMaxLines              int
	MetaLogMaxLines          int

	AllowedUploadExt map[string]bool
}

func envStr(key, def string) string {
	v := strings.TrimSpace(viper.GetString(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def, min, max int) int {
	v := def
	if viper.IsSet(key) {
		if n, err := parseIntLoose(viper.GetString(key)); err == nil {
			v = n
		}
	}
	if v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

func envFloat(key string, def, min, max float64) float64 {
	v := def
	if viper.IsSet(key) {
		v = viper.GetFloat64(key)
	}
	if v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

func envBool(key string, def bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return def
}

func parseIntLoose(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	return n, err
}

func defaultVADPresets() map[string]VADPreset {
	return map[string]VADPreset{
		"general": {Threshold: 0.55, MinSilenceMS: 420, MinSpeechMS: 240, SpeechPadMS: 110},
		"asmr":    {Threshold: 0.35, MinSilenceMS: 300, MinSpeechMS: 140, SpeechPadMS: 180},
		"mixed":   {Threshold: 0.45, MinSilenceMS: 360, MinSpeechMS: 180, SpeechPadMS: 140},
	}
}

// Load reads .env (if present), binds STUDIO_* environment variables through
// viper, and reads a studio.yaml config file (if any), watching it and
// logging when it changes. The returned Config is built once: later edits
// to studio.yaml are not applied to it.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	viper.SetEnvPrefix("STUDIO")
	viper.AutomaticEnv()
	viper.SetConfigName("studio")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err == nil {
		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			log.Printf("config file changed: %s", e.Name)
		})
	}

	cfg := &Config{
		Host: envStr("HOST", "0.0.0.0"),
		Port: envStr("PORT", "7860"),

		DataRoot: envStr("DATA_ROOT", "data"),

		APIAuthToken: envStr("API_AUTH_TOKEN", ""),

		DeepgramAPIKey:  envStr("DEEPGRAM_API_KEY", ""),
		DeepgramBaseURL: strings.TrimSuffix(envStr("DEEPGRAM_BASE_URL", "https://api.deepgram.com/v1"), "/"),
		HFToken:         envStr("HF_TOKEN", ""),
		HFKotobaURL:     envStr("HF_KOTOBA_URL", "https://api-inference.huggingface.co/models/kotoba-tech/kotoba-whisper-v2.2"),

		MaxUploadMB: envInt("MAX_UPLOAD_MB", 4096, 1, 0),

		Concurrency: envInt("CONCURRENCY", 20, 1, 64),
		JobWorkers:  envInt("JOB_WORKERS", 1, 1, 8),

		RequestTimeoutSeconds: envInt("REQUEST_TIMEOUT_SECONDS", 120, 10, 600),
		RequestRetryTimes:     envInt("REQUEST_RETRY_TIMES", 2, 0, 6),

		AutoCleanupEnabled:     envBool("AUTO_CLEANUP_ENABLED", true),
		CleanupIntervalSeconds: envInt("CLEANUP_INTERVAL_SECONDS", 120, 10, 0),
		DoneRetentionSeconds:   envInt("DONE_RETENTION_SECONDS", 7200, 60, 0),
		ErrorRetentionSeconds:  envInt("ERROR_RETENTION_SECONDS", 86400, 60, 0),
		OrphanRetentionSeconds: envInt("ORPHAN_RETENTION_SECONDS", 86400, 60, 0),

		AutoCleanupAfterDownload: envBool("AUTO_CLEANUP_AFTER_DOWNLOAD", false),
		DownloadGraceSeconds:     envInt("DOWNLOAD_GRACE_SECONDS", 60, 0, 0),
		SecureDeletePasses:       envInt("SECURE_DELETE_PASSES", 0, 0, 3),

		DefaultModel: envStr("DEFAULT_MODEL", "nova-2-general"),
		SupportedLangs: map[string]bool{
			"auto": true, "zh": true, "en": true, "ja": true,
		},
		SupportedModels: map[string]bool{
			"nova-2-general": true, "nova-3-general": true, "whisper-large": true,
			"kotoba-tech/kotoba-whisper-v2.2": true,
		},

		MaxSegmentSeconds:           envFloat("MAX_SEGMENT_SECONDS", 15.0, 5.0, 30.0),
		MinSegmentSeconds:           envFloat("MIN_SEGMENT_SECONDS", 0.25, 0.1, 2.0),
		MinTranscribeSegmentSeconds: envFloat("MIN_TRANSCRIBE_SEGMENT_SECONDS", 0.45, 0.2, 2.0),
		ShortSegmentMergeGapSeconds: envFloat("SHORT_SEGMENT_MERGE_GAP_SECONDS", 0.2, 0.0, 1.0),

		VADPresetDefault: strings.ToLower(envStr("VAD_PRESET_DEFAULT", "general")),
		VADPresets:       defaultVADPresets(),

		MetaFlushIntervalSeconds: time.Duration(envFloat("META_FLUSH_INTERVAL_SECONDS", 0.8, 0.2, 5.0) * float64(time.Second)),
		LogMaxLines:              envInt("LOG_MAX_LINES", 1000, 100, 10000),
		MetaLogMaxLines:          envInt("META_LOG_MAX_LINES", 500, 50, 5000),

		AllowedUploadExt: map[string]bool{
			".mp3": true, ".wav": true, ".m4a": true, ".mp4": true, ".aac": true,
			".flac": true, ".ogg": true, ".opus": true, ".webm": true, ".mov": true,
			".mkv": true, ".mpeg": true, ".mpg": true, ".mpga": true, ".mpe": true,
			".3gp": true, ".m4v": true, ".avi": true,
		},
	}

	if _, ok := cfg.VADPresets[cfg.VADPresetDefault]; !ok {
		cfg.VADPresetDefault = "general"
	}

	return cfg
}

// UploadsDir, TmpDir, OutputsDir, MetaDir, LocksDir are the five sibling
// roots of the artifact store.
func (c *Config) UploadsDir() string { return joinRoot(c.DataRoot, "uploads") }
func (c *Config) TmpDir() string     { return joinRoot(c.DataRoot, "tmp") }
func (c *Config) OutputsDir() string { return joinRoot(c.DataRoot, "outputs") }
func (c *Config) MetaDir() string    { return joinRoot(c.DataRoot, "meta") }
func (c *Config) LocksDir() string   { return joinRoot(c.DataRoot, "locks") }

func joinRoot(root, leaf string) string {
	if root == "" {
		root = "."
	}
	return root + string(os.PathSeparator) + leaf
}

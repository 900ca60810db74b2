// Package api implements the thin HTTP surface over the engine:
// upload/status/cancel/download/health/config, each handler delegating
// straight into the job registry and queue.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sttstudio/internal/config"
	"sttstudio/internal/job"
	"sttstudio/internal/queue"
	"sttstudio/internal/store"
	"sttstudio/pkg/logger"
)

// Handler holds every collaborator the routes need.
type Handler struct {
	cfg   *config.Config
	reg   *job.Registry
	store *store.Store
	queue *queue.Queue
}

// NewHandler builds the handler set.
func NewHandler(cfg *config.Config, reg *job.Registry, st *store.Store, q *queue.Queue) *Handler {
	return &Handler{cfg: cfg, reg: reg, store: st, queue: q}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFilename strips directory components and anything but
// alphanumerics/dot/dash/underscore, mirroring Werkzeug's secure_filename
// closely enough for this studio's purposes.
func safeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	return name
}

// HealthCheck reports queue depth and config, never gated by the token
// check so container probes work unauthenticated.
func (h *Handler) HealthCheck(c *gin.Context) {
	queued, running := 0, 0
	for _, id := range h.reg.IDs() {
		rec := h.reg.Get(id)
		if rec == nil {
			continue
		}
		switch rec.Status {
		case job.StatusQueued:
			queued++
		case job.StatusRunning:
			running++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                   true,
		"queued":               queued,
		"running":              running,
		"workers":              h.cfg.JobWorkers,
		"segment_concurrency":  h.cfg.Concurrency,
		"auth":                 h.cfg.APIAuthToken != "",
	})
}

// GetConfig surfaces the resolved VAD presets, supported languages/models,
// and default model.
func (h *Handler) GetConfig(c *gin.Context) {
	langs := sortedKeys(h.cfg.SupportedLangs)
	models := sortedKeys(h.cfg.SupportedModels)

	preset := h.cfg.VADPresetDefault
	presets := make(gin.H, len(h.cfg.VADPresets))
	for name, p := range h.cfg.VADPresets {
		presets[name] = gin.H{
			"vad_threshold":      p.Threshold,
			"vad_min_silence_ms": p.MinSilenceMS,
			"vad_min_speech_ms":  p.MinSpeechMS,
			"vad_speech_pad_ms":  p.SpeechPadMS,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"max_upload_mb":     h.cfg.MaxUploadMB,
		"default_model":     h.cfg.DefaultModel,
		"supported_lang":    langs,
		"supported_models":  models,
		"auth_enabled":      h.cfg.APIAuthToken != "",
		"vad_defaults": gin.H{
			"vad_preset":                      preset,
			"vad_presets":                     presets,
			"min_transcribe_segment_seconds":  h.cfg.MinTranscribeSegmentSeconds,
			"short_segment_merge_gap_seconds": h.cfg.ShortSegmentMergeGapSeconds,
		},
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SubmitJob accepts a multipart upload plus language/model/options form
// fields, writes the file to uploads/<id>/, initializes the job record,
// and enqueues it.
func (h *Handler) SubmitJob(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no file uploaded"})
		return
	}
	if fileHeader.Size > int64(h.cfg.MaxUploadMB)*1024*1024 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": fmt.Sprintf("file exceeds the %d MB upload limit", h.cfg.MaxUploadMB)})
		return
	}

	language := strings.TrimSpace(c.DefaultPostForm("language", "auto"))
	model := strings.TrimSpace(c.DefaultPostForm("model", h.cfg.DefaultModel))
	var options map[string]interface{}
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			options = nil
		}
	}
	if options == nil {
		options = map[string]interface{}{}
	}

	if !h.cfg.SupportedLangs[language] {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("unsupported language: %s", language)})
		return
	}
	if !h.cfg.SupportedModels[model] {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("unsupported model: %s", model)})
		return
	}
	if !strings.Contains(strings.ToLower(model), "kotoba") && h.cfg.DeepgramAPIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "DEEPGRAM_API_KEY is not configured"})
		return
	}

	originalName := strings.TrimSpace(fileHeader.Filename)
	if originalName == "" {
		originalName = "upload.bin"
	}
	safeName := safeFilename(originalName)
	if safeName == "" {
		safeName = "upload_" + job.NewID()[:10] + ".bin"
	}
	if ext := strings.ToLower(filepath.Ext(safeName)); !h.cfg.AllowedUploadExt[ext] {
		logger.Warn("unexpected upload extension", "name", safeName)
	}

	id := job.NewID()
	uploadDir := h.store.UploadDir(id)
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to prepare upload directory"})
		return
	}
	inputPath := filepath.Join(uploadDir, safeName)
	if err := c.SaveUploadedFile(fileHeader, inputPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to save uploaded file"})
		return
	}

	h.reg.Init(id, job.Payload{
		FilePath:     inputPath,
		Language:     language,
		Model:        model,
		OriginalName: originalName,
		Options:      options,
	})
	h.reg.AppendLog(id, "upload complete, job enqueued")
	h.queue.Enqueue(id)

	c.JSON(http.StatusOK, gin.H{"ok": true, "job_id": id})
}

// GetJobStatus returns current state, progress, new log lines since a
// caller-supplied seq cursor, and a download URL when done.
func (h *Handler) GetJobStatus(c *gin.Context) {
	id := c.Param("id")
	rec := h.reg.Get(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
		return
	}

	since, _ := strconv.Atoi(c.DefaultQuery("since", "0"))
	newLogs := make([]job.LogEntry, 0)
	for _, l := range rec.Logs {
		if l.Seq > since {
			newLogs = append(newLogs, l)
		}
	}
	nextSince := since
	if n := len(rec.Logs); n > 0 {
		nextSince = rec.Logs[n-1].Seq
	}

	var downloadURL interface{}
	if rec.ResultPath != nil {
		downloadURL = "/api/download/" + id
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"status":           rec.Status,
		"progress":         rec.Progress,
		"logs":             newLogs,
		"next_since":       nextSince,
		"download_url":     downloadURL,
		"error":            rec.Error,
		"cancel_requested": rec.CancelRequested,
	})
}

// CancelJob sets cancel_requested; a queued job is transitioned to
// cancelled immediately, a running job converges on its own the next
// time it observes the flag.
func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	rec := h.reg.Get(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
		return
	}

	if rec.Status.Terminal() {
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": rec.Status, "message": "job already finished"})
		return
	}

	h.reg.Update(id, func(r *job.Record) { r.CancelRequested = true })
	h.reg.AppendLog(id, "cancellation requested")

	if rec = h.reg.Get(id); rec.Status == job.StatusQueued {
		h.reg.Update(id, func(r *job.Record) { r.Status = job.StatusCancelled })
	}

	rec = h.reg.Get(id)
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": rec.Status})
}

// DownloadResult streams the generated SRT and marks downloaded_at.
func (h *Handler) DownloadResult(c *gin.Context) {
	id := c.Param("id")
	rec := h.reg.Get(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
		return
	}
	if rec.Status != job.StatusDone || rec.ResultPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "result not ready"})
		return
	}
	if _, err := os.Stat(*rec.ResultPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "result file missing"})
		return
	}

	downloadName := "subtitle.srt"
	if rec.DownloadName != nil && *rec.DownloadName != "" {
		downloadName = *rec.DownloadName
	}

	h.reg.Update(id, func(r *job.Record) {
		now := nowSeconds()
		r.DownloadedAt = &now
	})

	c.FileAttachment(*rec.ResultPath, downloadName)
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

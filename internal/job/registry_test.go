package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInitAndGet(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, 500)

	rec := reg.Init("job-1", Payload{FilePath: "/tmp/in.wav", Language: "auto", Model: "general"})
	assert.Equal(t, StatusQueued, rec.Status)
	assert.Zero(t, rec.Progress)

	got := reg.Get("job-1")
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, "auto", got.Payload.Language)
}

func TestRegistryGetMissingReturnsNil(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 500)
	assert.Nil(t, reg.Get("does-not-exist"))
}

func TestRegistryCloneIsolatesLogsAndOptions(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 500)
	reg.Init("job-1", Payload{Options: map[string]interface{}{"vad_preset": "general"}})
	reg.AppendLog("job-1", "first line")

	a := reg.Get("job-1")
	b := reg.Get("job-1")
	a.Logs[0].Msg = "mutated"
	a.Payload.Options["vad_preset"] = "mutated"

	assert.Equal(t, "first line", b.Logs[0].Msg)
	assert.Equal(t, "general", b.Payload.Options["vad_preset"])
}

func TestRegistryAppendLogAssignsIncreasingSeqAndTruncates(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 3)
	reg.Init("job-1", Payload{})

	for i := 0; i < 5; i++ {
		reg.AppendLog("job-1", "line")
	}

	rec := reg.Get("job-1")
	require.Len(t, rec.Logs, 3)
	assert.Equal(t, 3, rec.Logs[0].Seq)
	assert.Equal(t, 5, rec.Logs[2].Seq)
}

func TestRegistryAppendLogIgnoresBlankMessage(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 500)
	reg.Init("job-1", Payload{})
	reg.AppendLog("job-1", "   \r\n  ")

	rec := reg.Get("job-1")
	assert.Empty(t, rec.Logs)
}

func TestRegistryUpdateAndTerminalStatus(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 500)
	reg.Init("job-1", Payload{})

	ok := reg.Update("job-1", func(r *Record) {
		r.Status = StatusDone
		r.Progress = 100
	})
	assert.True(t, ok)

	rec := reg.Get("job-1")
	assert.True(t, rec.Status.Terminal())
	assert.Equal(t, float64(100), rec.Progress)
}

func TestRegistryFlushOneWritesAtomicSnapshot(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, 500)
	reg.Init("job-1", Payload{OriginalName: "clip.wav"})
	reg.AppendLog("job-1", "started")

	require.NoError(t, reg.flushOne("job-1", 500))

	data, err := os.ReadFile(filepath.Join(dir, "job-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "clip.wav")
	assert.Contains(t, string(data), "started")
}

func TestRegistryRehydrateResumesQueuedAndRunning(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, 500)
	reg.Init("done-job", Payload{})
	reg.Update("done-job", func(r *Record) { r.Status = StatusDone })
	reg.Init("queued-job", Payload{})
	reg.Init("running-job", Payload{})
	reg.Update("running-job", func(r *Record) { r.Status = StatusRunning })
	reg.Init("cancel-requested-job", Payload{})
	reg.Update("cancel-requested-job", func(r *Record) { r.CancelRequested = true })

	for _, id := range []string{"done-job", "queued-job", "running-job", "cancel-requested-job"} {
		require.NoError(t, reg.flushOne(id, 500))
	}

	fresh := NewRegistry(dir, 500)
	resumable, err := fresh.Rehydrate()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"queued-job", "running-job"}, resumable)
}

func TestNewIDIsUniqueHex(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}

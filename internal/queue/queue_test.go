package queue

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
}

func (f *fakeProcessor) ProcessJob(ctx context.Context, jobID string, registerProcess func(*exec.Cmd)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, jobID)
	return nil
}

func (f *fakeProcessor) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func TestAcquireLeaseIsExclusive(t *testing.T) {
	q := New(&fakeProcessor{}, 1, t.TempDir())

	release, ok := q.acquireLease("job-1")
	require.True(t, ok)

	_, ok = q.acquireLease("job-1")
	assert.False(t, ok, "second acquire must fail while the lease is held")

	release()

	release2, ok := q.acquireLease("job-1")
	assert.True(t, ok, "lease is reacquirable after release")
	release2()
}

func TestAcquireLeaseWritesPidForDiagnostics(t *testing.T) {
	dir := t.TempDir()
	q := New(&fakeProcessor{}, 1, dir)

	release, ok := q.acquireLease("job-1")
	require.True(t, ok)
	defer release()

	data, err := os.ReadFile(q.lockPath("job-1"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestWorkerDrainsEnqueuedJobsAndReleasesLease(t *testing.T) {
	proc := &fakeProcessor{}
	q := New(proc, 2, t.TempDir())
	q.Start()
	defer q.Stop()

	q.Enqueue("job-1")
	q.Enqueue("job-2")

	assert.Eventually(t, func() bool {
		return len(proc.seen()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	for _, id := range []string{"job-1", "job-2"} {
		_, err := os.Stat(q.lockPath(id))
		assert.True(t, os.IsNotExist(err), "lease for %s must be released", id)
	}
}

func TestWorkerSkipsJobWhoseLeaseIsHeldElsewhere(t *testing.T) {
	proc := &fakeProcessor{}
	dir := t.TempDir()
	q := New(proc, 1, dir)

	// another process holds the lease
	require.NoError(t, os.WriteFile(q.lockPath("job-1"), []byte("12345"), 0o644))

	q.Start()
	defer q.Stop()
	q.Enqueue("job-1")
	q.Enqueue("job-2")

	assert.Eventually(t, func() bool {
		seen := proc.seen()
		return len(seen) == 1 && seen[0] == "job-2"
	}, 5*time.Second, 10*time.Millisecond)
}

package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rezkam/agentforge/internal/dispatch"
	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/jobqueue"
	"github.com/rezkam/agentforge/internal/jobstatus"
	"github.com/rezkam/agentforge/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	jobType string
	calls   int32
	fn      func(ctx context.Context, job domain.Job, attempt int) domain.JobResult
}

func (h *countingHandler) JobType() string { return h.jobType }

func (h *countingHandler) Execute(ctx context.Context, job domain.Job) domain.JobResult {
	attempt := int(atomic.AddInt32(&h.calls, 1))
	return h.fn(ctx, job, attempt)
}

func newFixture(maxConcurrency int, policy retry.Policy) (*Processor, *jobqueue.Queue, *dispatch.Dispatcher, *jobstatus.MemoryStore) {
	q := jobqueue.New(jobqueue.FIFO, 16)
	status := jobstatus.NewMemoryStore()
	d := dispatch.New(q, status, noopDedup{})
	p := New(q, d, status, Config{MaxConcurrency: maxConcurrency, RetryPolicy: policy, ShutdownTimeout: 2 * time.Second})
	return p, q, d, status
}

type noopDedup struct{}

func (noopDedup) GetInFlight(string) (string, bool)      { return "", false }
func (noopDedup) Register(jobID, _ string) (string, bool) { return jobID, true }
func (noopDedup) Unregister(string)                       {}

func TestProcessor_RetriesUntilMaxRetriesExhausted(t *testing.T) {
	p, _, d, status := newFixture(1, retry.Policy{Enabled: true, BaseDelay: time.Millisecond})
	handler := &countingHandler{
		jobType: "Flaky",
		fn: func(ctx context.Context, job domain.Job, attempt int) domain.JobResult {
			return domain.Failure("boom", nil, true)
		},
	}
	d.RegisterHandler(handler)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.True(t, d.Dispatch(ctx, domain.Job{ID: "j1", Type: "Flaky", MaxRetries: 2}))

	runCtx, runCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer runCancel()
	_ = p.Run(runCtx)

	assert.Equal(t, int32(3), atomic.LoadInt32(&handler.calls))
	info, ok, err := status.Get("j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, info.Status)
}

func TestProcessor_ShouldRetryFalseStopsAtOneAttempt(t *testing.T) {
	p, _, d, status := newFixture(1, retry.Policy{Enabled: true, BaseDelay: time.Millisecond})
	handler := &countingHandler{
		jobType: "Fatal",
		fn: func(ctx context.Context, job domain.Job, attempt int) domain.JobResult {
			return domain.Failure("unrecoverable", nil, false)
		},
	}
	d.RegisterHandler(handler)

	ctx := context.Background()
	require.True(t, d.Dispatch(ctx, domain.Job{ID: "j1", Type: "Fatal", MaxRetries: 5}))

	runCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Run(runCtx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&handler.calls))
	info, ok, err := status.Get("j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, info.Status)
}

func TestProcessor_MaxConcurrencyBoundsParallelism(t *testing.T) {
	p, _, d, _ := newFixture(2, retry.Policy{})
	var inFlight, maxSeen int32
	handler := &countingHandler{
		jobType: "Slow",
		fn: func(ctx context.Context, job domain.Job, attempt int) domain.JobResult {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
					break
				}
			}
			time.Sleep(200 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return domain.Success(nil)
		},
	}
	d.RegisterHandler(handler)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.True(t, d.Dispatch(ctx, domain.Job{ID: string(rune('a' + i)), Type: "Slow"}))
	}

	runCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Run(runCtx)

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
	assert.Equal(t, int32(4), atomic.LoadInt32(&handler.calls))
}

func TestProcessor_CancellationDuringExecutionEndsCancelledWithoutRetry(t *testing.T) {
	p, _, d, status := newFixture(1, retry.Policy{Enabled: true, BaseDelay: time.Millisecond})
	started := make(chan struct{})
	handler := &countingHandler{
		jobType: "Cancellable",
		fn: func(ctx context.Context, job domain.Job, attempt int) domain.JobResult {
			close(started)
			<-ctx.Done()
			return domain.Failure("interrupted", ctx.Err(), true)
		},
	}
	d.RegisterHandler(handler)

	ctx := context.Background()
	require.True(t, d.Dispatch(ctx, domain.Job{ID: "j1", Type: "Cancellable", MaxRetries: 5}))

	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Run(runCtx)
	}()

	<-started
	cancel()
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&handler.calls))
	info, ok, err := status.Get("j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, info.Status)
}

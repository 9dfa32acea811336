package dispatch

import (
	"context"
	"testing"

	"github.com/rezkam/agentforge/internal/dedup"
	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/jobqueue"
	"github.com/rezkam/agentforge/internal/jobstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct{ jobType string }

func (h fakeHandler) JobType() string { return h.jobType }
func (h fakeHandler) Execute(ctx context.Context, job domain.Job) domain.JobResult {
	return domain.Success(nil)
}

func newDispatcher() (*Dispatcher, *jobqueue.Queue) {
	q := jobqueue.New(jobqueue.FIFO, 10)
	d := New(q, jobstatus.NewMemoryStore(), dedup.New())
	return d, q
}

func TestDispatch_NoHandlerReturnsFalse(t *testing.T) {
	d, _ := newDispatcher()
	ok := d.Dispatch(context.Background(), domain.Job{ID: "j1", Type: "Unknown"})
	assert.False(t, ok)
}

func TestDispatch_EnqueuesAndWritesQueuedStatus(t *testing.T) {
	d, q := newDispatcher()
	status := jobstatus.NewMemoryStore()
	d = New(q, status, dedup.New())
	d.RegisterHandler(fakeHandler{jobType: "GeneratePlan"})

	ok := d.Dispatch(context.Background(), domain.Job{ID: "j1", Type: "GeneratePlan"})
	require.True(t, ok)

	got, found, err := status.Get("j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 1, q.Count())
}

func TestDispatch_DuplicateIdempotencyKeyMergesWithoutEnqueue(t *testing.T) {
	d, q := newDispatcher()
	d.RegisterHandler(fakeHandler{jobType: "GeneratePlan"})

	ok1 := d.Dispatch(context.Background(), domain.Job{ID: "j1", Type: "GeneratePlan", IdempotencyKey: "task-1"})
	ok2 := d.Dispatch(context.Background(), domain.Job{ID: "j2", Type: "GeneratePlan", IdempotencyKey: "task-1"})

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 1, q.Count())
}

func TestRegisterHandler_FirstWins(t *testing.T) {
	d, _ := newDispatcher()
	d.RegisterHandler(fakeHandler{jobType: "GeneratePlan"})
	d.RegisterHandler(fakeHandler{jobType: "GeneratePlan"})

	assert.NotNil(t, d.GetHandler("GeneratePlan"))
}

func TestCancelJob_UnknownReturnsFalse(t *testing.T) {
	d, _ := newDispatcher()
	assert.False(t, d.CancelJob("missing"))
}

func TestCancelJob_CancelsRegisteredHandle(t *testing.T) {
	d, _ := newDispatcher()
	_, cancel := context.WithCancel(context.Background())
	d.RegisterActiveJob("j1", NewCancellationHandle(cancel))

	assert.True(t, d.CancelJob("j1"))
}

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/pipeline"
	"kb-vectorizer/pkg/tasks"
)

type fakeRunner struct {
	mu    sync.Mutex
	opts  []pipeline.BatchOptions
	err   error
	check func(ctx context.Context)
}

func (f *fakeRunner) RunBatch(ctx context.Context, opts pipeline.BatchOptions) (*pipeline.BatchResult, error) {
	if f.check != nil {
		f.check(ctx)
	}
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.BatchResult{Total: 1, Vectorized: 1, Errors: []pipeline.DocumentError{}}, nil
}

type fakeStatus struct{}

func (fakeStatus) Summary(ctx context.Context, organizationID string) (*model.StatusSummary, error) {
	return model.NewStatusSummary(organizationID, map[model.VectorizationStatus]int64{model.StatusCompleted: 1}), nil
}

func (fakeStatus) Detail(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	return &model.DocumentStatus{ID: documentID, Status: model.StatusPending}, nil
}

type fakeSubmitter struct {
	tasks chan tasks.VectorizeTask
	err   error
	block chan struct{}
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{tasks: make(chan tasks.VectorizeTask, 16)}
}

func (f *fakeSubmitter) Name() string { return "fake" }

func (f *fakeSubmitter) Submit(ctx context.Context, task tasks.VectorizeTask) error {
	if f.block != nil {
		<-f.block
	}
	f.tasks <- task
	return f.err
}

func TestRunBatchIsDetachedFromCallerCancellation(t *testing.T) {
	runner := &fakeRunner{check: func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		_, ok := ctx.Deadline()
		assert.True(t, ok, "batch timeout applies")
	}}
	svc := NewVectorizeService(runner, fakeStatus{}, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.RunBatch(ctx, pipeline.BatchOptions{BatchSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Vectorized)
	assert.Equal(t, 5, runner.opts[0].BatchSize)
}

func TestTriggerDoesNotBlockOrPropagateErrors(t *testing.T) {
	sub := newFakeSubmitter()
	sub.block = make(chan struct{})
	sub.err = errors.New("broker down")
	svc := NewVectorizeService(&fakeRunner{}, fakeStatus{}, sub, 0)

	done := make(chan string, 1)
	go func() {
		done <- svc.Trigger(context.Background(), TriggerRequest{OrganizationID: "org-1", Reason: "upload"})
	}()

	var id string
	select {
	case id = <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked on the submitter")
	}
	assert.NotEmpty(t, id)

	close(sub.block)
	select {
	case task := <-sub.tasks:
		assert.Equal(t, id, task.TriggerID)
		assert.Equal(t, "org-1", task.OrganizationID)
		assert.Equal(t, "upload", task.Reason)
		assert.False(t, task.RequestedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("task was never submitted")
	}
}

func TestTriggerWithoutSubmitter(t *testing.T) {
	svc := NewVectorizeService(&fakeRunner{}, fakeStatus{}, nil, 0)
	assert.NotEmpty(t, svc.Trigger(context.Background(), TriggerRequest{}))
}

func TestRunTask(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewVectorizeService(runner, fakeStatus{}, nil, 0)

	require.NoError(t, svc.RunTask(context.Background(), tasks.VectorizeTask{TriggerID: "t", OrganizationID: "org-9", BatchSize: 7}))
	assert.Equal(t, pipeline.BatchOptions{BatchSize: 7, OrganizationID: "org-9"}, runner.opts[0])

	runner.err = errors.New("db down")
	err := svc.RunTask(context.Background(), tasks.VectorizeTask{TriggerID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestProgressAndDocumentStatus(t *testing.T) {
	svc := NewVectorizeService(&fakeRunner{}, fakeStatus{}, nil, 0)

	summary, err := svc.Progress(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00%", summary.Percentage)

	status, err := svc.DocumentStatus(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", status.ID)
}

func TestLocalSubmitterCoalescesTriggers(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		runs []tasks.VectorizeTask
	)
	var started atomic.Bool
	local := NewLocalSubmitter(func(ctx context.Context, task tasks.VectorizeTask) error {
		mu.Lock()
		runs = append(runs, task)
		mu.Unlock()
		if started.CompareAndSwap(false, true) {
			<-release
		}
		return nil
	}, 50)

	require.NoError(t, local.Submit(context.Background(), tasks.VectorizeTask{TriggerID: "1", OrganizationID: "org-a"}))
	require.Eventually(t, started.Load, time.Second, 5*time.Millisecond)

	require.NoError(t, local.Submit(context.Background(), tasks.VectorizeTask{TriggerID: "2", OrganizationID: "org-a", BatchSize: 20}))
	require.NoError(t, local.Submit(context.Background(), tasks.VectorizeTask{TriggerID: "3", OrganizationID: "org-b", BatchSize: 10}))
	close(release)
	local.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runs, 2, "triggers arriving during a run are merged")
	assert.Equal(t, "3", runs[1].TriggerID)
	assert.Equal(t, "", runs[1].OrganizationID, "different organizations widen to all")
	assert.Equal(t, 20, runs[1].BatchSize)
}

func TestMergeTasksComparesEffectiveBatchSize(t *testing.T) {
	defaulted := tasks.VectorizeTask{TriggerID: "1", OrganizationID: "org-a"}
	small := tasks.VectorizeTask{TriggerID: "2", OrganizationID: "org-a", BatchSize: 10}
	large := tasks.VectorizeTask{TriggerID: "3", OrganizationID: "org-a", BatchSize: 120}

	merged := mergeTasks(&defaulted, small, 50)
	assert.Equal(t, 0, merged.BatchSize, "the default of 50 beats an explicit 10")
	assert.Equal(t, "2", merged.TriggerID)

	merged = mergeTasks(&small, defaulted, 50)
	assert.Equal(t, 0, merged.BatchSize)

	merged = mergeTasks(&defaulted, large, 50)
	assert.Equal(t, 120, merged.BatchSize)

	merged = mergeTasks(&large, defaulted, 50)
	assert.Equal(t, 120, merged.BatchSize)
}

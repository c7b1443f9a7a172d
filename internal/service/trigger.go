package service

import (
	"context"
	"sync"

	"kb-vectorizer/pkg/log"
	"kb-vectorizer/pkg/tasks"
)

// TriggerSubmitter 将向量化任务提交给异步执行方（Kafka 或进程内）。
type TriggerSubmitter interface {
	Name() string
	Submit(ctx context.Context, task tasks.VectorizeTask) error
}

// TaskFunc 执行一个向量化任务。
type TaskFunc func(ctx context.Context, task tasks.VectorizeTask) error

// LocalSubmitter 在当前进程内后台执行任务，未启用 Kafka 时使用。
// 同一时刻最多运行一个批处理；运行期间到达的触发合并为一个待执行任务。
type LocalSubmitter struct {
	run              TaskFunc
	defaultBatchSize int

	mu      sync.Mutex
	running bool
	pending *tasks.VectorizeTask
	wg      sync.WaitGroup
}

// NewLocalSubmitter 创建 LocalSubmitter。defaultBatchSize 是 BatchSize 为 0 的任务实际使用的批大小，用于合并时比较。
func NewLocalSubmitter(run TaskFunc, defaultBatchSize int) *LocalSubmitter {
	return &LocalSubmitter{run: run, defaultBatchSize: defaultBatchSize}
}

// Name 返回提交方式的名称。
func (s *LocalSubmitter) Name() string { return "local" }

// Submit 立即返回，任务在后台执行。
func (s *LocalSubmitter) Submit(_ context.Context, task tasks.VectorizeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.pending = mergeTasks(s.pending, task, s.defaultBatchSize)
		return nil
	}
	s.running = true
	s.wg.Add(1)
	go s.loop(task)
	return nil
}

// Wait 等待后台任务全部结束。
func (s *LocalSubmitter) Wait() {
	s.wg.Wait()
}

func (s *LocalSubmitter) loop(task tasks.VectorizeTask) {
	defer s.wg.Done()
	for {
		if err := s.run(context.Background(), task); err != nil {
			log.Errorf("[LocalSubmitter] 后台向量化任务失败, triggerID: %s, error: %v", task.TriggerID, err)
		}

		s.mu.Lock()
		if s.pending == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		task = *s.pending
		s.pending = nil
		s.mu.Unlock()
	}
}

// mergeTasks 合并待执行任务：组织不同时扩大为全部组织，批大小取实际生效值中较大者。
func mergeTasks(pending *tasks.VectorizeTask, next tasks.VectorizeTask, defaultBatchSize int) *tasks.VectorizeTask {
	if pending == nil {
		return &next
	}
	merged := next
	if pending.OrganizationID != next.OrganizationID {
		merged.OrganizationID = ""
	}
	effective := func(n int) int {
		if n <= 0 {
			return defaultBatchSize
		}
		return n
	}
	if effective(pending.BatchSize) > effective(merged.BatchSize) {
		merged.BatchSize = pending.BatchSize
	}
	return &merged
}

package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hanwei-dev/VeoBridge/internal/domain"
	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
)

// Store is the in-memory task arena. Tasks live in arrival order, which is
// the dispatch order; a cursor marks the next position to scan for pending
// work. Tasks are never removed individually, only via Clear.
//
// All status changes go through the methods below so that invalid lifecycle
// transitions are unrepresentable.
type Store struct {
	mu     sync.Mutex
	tasks  []*task.Task
	index  map[string]int
	cursor int
	seq    int
	now    func() time.Time
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
		now:   time.Now,
	}
}

// Enqueue validates and appends a new task in the queued state. It does not
// dispatch. Text-to-video tasks never accept reference images; the list is
// silently cleared for that kind.
func (s *Store) Enqueue(req task.CreateRequest) (task.Task, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return task.Task{}, domain.ErrEmptyPrompt
	}

	refs := req.ReferenceImages
	if req.Kind == task.KindTextToVideo {
		refs = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := &task.Task{
		ID:              fmt.Sprintf("task_%d_%d", s.seq, now.UnixMicro()),
		Prompt:          prompt,
		Kind:            req.Kind,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		ReferenceImages: refs,
		OutputDir:       req.OutputDir,
		FileExt:         req.Kind.FileExt(),
		RowNumber:       req.RowNumber,
		Status:          task.StatusQueued,
		CreatedAt:       now,
	}
	s.seq++
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
	return *t, nil
}

// NextPending returns the first queued task at or after the cursor, advancing
// the cursor past entries that are no longer queued. The cursor never moves
// backward here; Retry and Requeue rewind it explicitly.
func (s *Store) NextPending() (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.cursor < len(s.tasks) {
		t := s.tasks[s.cursor]
		if t.Status == task.StatusQueued {
			return *t, true
		}
		s.cursor++
	}
	return task.Task{}, false
}

// Assign binds a queued task to a worker and stamps the start time. If the
// task sits at the cursor, the cursor advances past it.
func (s *Store) Assign(id, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, i, err := s.locked(id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusQueued {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, task.StatusAssigned)
	}

	now := s.now()
	t.Status = task.StatusAssigned
	t.WorkerID = workerID
	t.StartedAt = &now
	t.StatusDetail = ""
	if i == s.cursor {
		s.cursor++
	}
	return nil
}

// SetDetail updates the human-readable progress text without changing state.
func (s *Store) SetDetail(id, detail string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, _, err := s.locked(id)
	if err != nil {
		return false
	}
	t.StatusDetail = detail
	return true
}

// Complete marks a task succeeded with the saved artifact path. A queued task
// may complete directly only through the skip-if-exists path; otherwise the
// task must be assigned.
func (s *Store) Complete(id, savedPath, outputDirPath, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, i, err := s.locked(id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusAssigned && t.Status != task.StatusQueued {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, task.StatusSucceeded)
	}

	now := s.now()
	t.Status = task.StatusSucceeded
	t.SavedPath = savedPath
	t.OutputDirPath = outputDirPath
	if detail != "" {
		t.StatusDetail = detail
	}
	t.EndedAt = &now
	if i == s.cursor {
		s.cursor++
	}
	return nil
}

// Fail marks an assigned task failed with the worker-reported error.
func (s *Store) Fail(id, detail string) error {
	return s.finish(id, task.StatusFailed, detail)
}

// MarkSaveFailed marks an assigned task save_failed after a decode or write
// error on the result payload.
func (s *Store) MarkSaveFailed(id, detail string) error {
	return s.finish(id, task.StatusSaveFailed, detail)
}

func (s *Store) finish(id string, status task.Status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, _, err := s.locked(id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusAssigned {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, status)
	}

	now := s.now()
	t.Status = status
	t.StatusDetail = detail
	t.EndedAt = &now
	return nil
}

// Requeue returns an assigned task to the queue after its worker vanished or
// a send failed. The interruption is recoverable, so the task is not failed.
// The cursor rewinds so the task is scanned again.
func (s *Store) Requeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, i, err := s.locked(id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusAssigned {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, task.StatusQueued)
	}

	t.Status = task.StatusQueued
	t.WorkerID = ""
	t.StartedAt = nil
	if i < s.cursor {
		s.cursor = i
	}
	return nil
}

// SweepTimeouts transitions every assigned task older than maxAge to
// timed_out and returns copies of the affected tasks, WorkerID included, so
// the caller can release the workers.
func (s *Store) SweepTimeouts(maxAge time.Duration) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []task.Task
	for _, t := range s.tasks {
		if t.Status != task.StatusAssigned || t.StartedAt == nil {
			continue
		}
		if now.Sub(*t.StartedAt) <= maxAge {
			continue
		}
		t.Status = task.StatusTimedOut
		t.StatusDetail = fmt.Sprintf("task timed out after %s", maxAge)
		t.EndedAt = &now
		expired = append(expired, *t)
	}
	return expired
}

// Retry resets a failed, timed-out, or save-failed task back to queued and
// rewinds the cursor to its position if the cursor has moved past it.
func (s *Store) Retry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryLocked(id)
}

func (s *Store) retryLocked(id string) error {
	t, i, err := s.locked(id)
	if err != nil {
		return err
	}
	if !t.Status.Retryable() {
		return fmt.Errorf("%w: status %s", domain.ErrNotRetryable, t.Status)
	}

	t.Status = task.StatusQueued
	t.StatusDetail = ""
	t.WorkerID = ""
	t.StartedAt = nil
	t.EndedAt = nil
	if i < s.cursor {
		s.cursor = i
	}
	return nil
}

// RetryAllFailed retries every retryable task and returns how many were
// reset. The cursor ends at the earliest affected position.
func (s *Store) RetryAllFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.tasks {
		if t.Status.Retryable() {
			if err := s.retryLocked(t.ID); err == nil {
				count++
			}
		}
	}
	return count
}

// Clear empties the store and resets the cursor.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = nil
	s.index = make(map[string]int)
	s.cursor = 0
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, _, err := s.locked(id)
	if err != nil {
		return task.Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks in arrival order.
func (s *Store) List() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

// Len returns the number of tasks in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// locked looks up a task by id. Callers must hold s.mu.
func (s *Store) locked(id string) (*task.Task, int, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, 0, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return s.tasks[i], i, nil
}

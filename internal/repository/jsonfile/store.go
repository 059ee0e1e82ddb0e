// Package jsonfile persists tasks as a single JSON array rewritten in full on
// every mutation. Lookups are linear scans; there is no secondary index. All
// access is serialized through one mutex so concurrent task completions cannot
// lose each other's writes.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"ytgrab/internal/domain"
	"ytgrab/internal/repository"
)

type Store struct {
	path string
	log  *logrus.Logger

	mu sync.Mutex
}

func New(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	s := &Store{path: path, log: log}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write([]domain.Task{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Create(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.read()
	tasks = append(tasks, *task)
	return s.write(tasks)
}

func (s *Store) Update(ctx context.Context, id string, update domain.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.read()
	for i := range tasks {
		if tasks[i].ID == id {
			update.Apply(&tasks[i])
			return s.write(tasks)
		}
	}
	s.log.Warnf("task %s not found for update", id)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.read() {
		if t.ID == id {
			task := t
			return &task, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) List(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write([]domain.Task{})
}

// read loads the whole collection, degrading to an empty one when the backing
// file is missing or corrupt. Callers must hold s.mu.
func (s *Store) read() []domain.Task {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("read task store %s: %v", s.path, err)
		}
		return []domain.Task{}
	}

	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.log.Warnf("task store %s is corrupt, starting empty: %v", s.path, err)
		return []domain.Task{}
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks
}

func (s *Store) write(tasks []domain.Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write task store: %w", err)
	}
	return nil
}

var _ repository.TaskStore = (*Store)(nil)

package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ytgrab/internal/domain"
	"ytgrab/internal/notify"
	"ytgrab/internal/repository"
	"ytgrab/internal/storage"
)

// Manager owns the task state machine, a bounded worker pool running blocking
// retrievals, and the per-task pause/cancel flags.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Download(ctx context.Context, url string, format domain.TaskFormat, outputDir string) (*domain.Task, error)
	Pause(id string) bool
	Resume(id string) bool
	Cancel(id string) bool
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	ClearAll(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Config struct {
	OutputDir     string
	MaxConcurrent int
	UploadOptions storage.UploadOptions
	Logger        *logrus.Logger
}

type manager struct {
	cfg     Config
	store   repository.TaskStore
	hub     *notify.Hub
	engine  Engine
	archive storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*taskHandle

	updates chan delivery
	drained chan struct{}
}

// delivery is one progress or terminal update crossing from a worker into
// the control plane.
type delivery struct {
	taskID string
	update domain.TaskUpdate
}

// errShutdown aborts a retrieval when the manager stops. Unlike ErrCanceled it
// records nothing: the task keeps its last persisted status and is picked up
// by Restore on the next run.
var errShutdown = errors.New("shutting down")

// taskHandle carries the control flags for one executing task. The flags are
// written by the control plane and read by the task's worker, so every access
// goes through the handle mutex. The cond releases a worker parked in wait.
type taskHandle struct {
	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	canceled bool
	released bool
}

func newTaskHandle() *taskHandle {
	h := &taskHandle{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *taskHandle) pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

// resume clears the pause flag and wakes the worker. Reports false when the
// task was not paused.
func (h *taskHandle) resume() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return false
	}
	h.paused = false
	h.cond.Broadcast()
	return true
}

// markCanceled sets the cancel flag, clearing any pending pause so a parked
// worker wakes up and observes the cancellation. Cancel beats pause when both
// race on the same task.
func (h *taskHandle) markCanceled() {
	h.mu.Lock()
	h.canceled = true
	h.paused = false
	h.cond.Broadcast()
	h.mu.Unlock()
}

// release unblocks the worker during shutdown. A worker parked on the pause
// flag can only be woken through the cond; context cancellation never reaches
// it.
func (h *taskHandle) release() {
	h.mu.Lock()
	h.released = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// wait blocks the calling worker while its task is paused. The cancel flag is
// re-checked on every wakeup and takes precedence over the pause flag.
func (h *taskHandle) wait() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if h.canceled {
			return ErrCanceled
		}
		if h.released {
			return errShutdown
		}
		if !h.paused {
			return nil
		}
		h.cond.Wait()
	}
}

// NewManager builds a task orchestrator. archive may be nil when no object
// storage is configured.
func NewManager(cfg Config, store repository.TaskStore, hub *notify.Hub, engine Engine, archive storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "downloads"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		store:   store,
		hub:     hub,
		engine:  engine,
		archive: archive,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[string]*taskHandle),
		updates: make(chan delivery, 64),
		drained: make(chan struct{}),
	}
}

// Start launches the update drain loop: the single goroutine that applies
// worker-originated updates to the store and broadcasts them, one at a time,
// in emission order.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.drained)
		for d := range m.updates {
			if err := m.store.Update(context.Background(), d.taskID, d.update); err != nil {
				m.cfg.Logger.WithField("task_id", d.taskID).Warnf("persist update: %v", err)
			}
			m.hub.Broadcast(notify.Event{
				Type:   notify.EventProgressUpdate,
				TaskID: d.taskID,
				Data:   d.update,
			})
		}
	}()

	m.cfg.Logger.Infof("download manager started, output dir: %s", m.cfg.OutputDir)
	return nil
}

// Shutdown stops accepting work, waits for in-flight workers and drains the
// remaining updates.
func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, handle := range m.active {
		handle.release()
	}
	m.mu.Unlock()
	m.wg.Wait()
	close(m.updates)
	<-m.drained
	m.cfg.Logger.Info("download manager stopped")
}

// Download persists a pending record and enqueues the retrieval. It returns
// as soon as the record exists; the retrieval itself runs on a worker.
func (m *manager) Download(ctx context.Context, url string, format domain.TaskFormat, outputDir string) (*domain.Task, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("url is required")
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if outputDir == "" {
		outputDir = m.cfg.OutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	now := time.Now()
	task := &domain.Task{
		ID:        uuid.NewString(),
		URL:       url,
		Format:    format,
		OutputDir: outputDir,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	m.enqueue(*task)
	return task, nil
}

// enqueue registers the task in the active set with fresh flags and hands it
// to the pool. Submissions beyond pool capacity queue on the semaphore.
func (m *manager) enqueue(task domain.Task) {
	handle := newTaskHandle()
	m.mu.Lock()
	m.active[task.ID] = handle
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.unregister(task.ID)
		select {
		case <-m.ctx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.runTask(m.ctx, handle, task)
		}
	}()
}

func (m *manager) unregister(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *manager) handleFor(id string) (*taskHandle, bool) {
	m.mu.Lock()
	handle, ok := m.active[id]
	m.mu.Unlock()
	return handle, ok
}

// Pause marks an active task paused. Its worker parks at the next progress
// report; the worker slot stays occupied for the duration of the pause. The
// status change rides the update channel so an earlier queued progress update
// cannot overwrite it.
func (m *manager) Pause(id string) bool {
	handle, ok := m.handleFor(id)
	if !ok {
		return false
	}
	handle.pause()
	m.deliver(id, domain.TaskUpdate{
		Status: domain.StatusPtr(domain.TaskStatusPaused),
	})
	return true
}

// Resume lifts a pause. Reports false when no pause flag is set for the id.
func (m *manager) Resume(id string) bool {
	handle, ok := m.handleFor(id)
	if !ok || !handle.resume() {
		return false
	}
	m.deliver(id, domain.TaskUpdate{
		Status: domain.StatusPtr(domain.TaskStatusDownloading),
	})
	return true
}

// Cancel flags an active task for cancellation. Cooperative: the worker
// observes the flag at its next progress report and aborts the retrieval.
func (m *manager) Cancel(id string) bool {
	handle, ok := m.handleFor(id)
	if !ok {
		return false
	}
	handle.markCanceled()
	return true
}

func (m *manager) Get(ctx context.Context, id string) (*domain.Task, error) {
	return m.store.Get(ctx, id)
}

func (m *manager) List(ctx context.Context) ([]domain.Task, error) {
	return m.store.List(ctx)
}

// ClearAll wipes the task history and tells every subscriber.
func (m *manager) ClearAll(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.hub.Broadcast(notify.Event{Type: notify.EventTasksCleared})
	return nil
}

// Restore re-enqueues every record a previous run left unfinished.
func (m *manager) Restore(ctx context.Context) error {
	tasks, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		if err := m.store.Update(ctx, task.ID, domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusPending),
			Progress: domain.Float64Ptr(0),
		}); err != nil {
			return err
		}
		m.cfg.Logger.WithField("task_id", task.ID).Info("restoring interrupted task")
		m.enqueue(task)
	}
	return nil
}

func buildFetchSpec(task domain.Task) FetchSpec {
	spec := FetchSpec{
		URL:            task.URL,
		OutputTemplate: filepath.Join(task.OutputDir, "%(title)s.%(ext)s"),
	}
	if task.Format == domain.FormatAudio {
		spec.Format = "bestaudio/best"
		spec.ExtractAudio = true
		spec.AudioFormat = "mp3"
		spec.AudioQuality = "192K"
	} else {
		spec.Format = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
	return spec
}

// runTask executes one retrieval on the calling worker and records its
// three-way outcome. The active-set entry is dropped by the caller's deferred
// unregister on every exit path.
func (m *manager) runTask(ctx context.Context, handle *taskHandle, task domain.Task) {
	logger := m.cfg.Logger.WithField("task_id", task.ID)

	// flags set while the task was queued are honored before the engine is
	// ever invoked
	if err := handle.wait(); err != nil {
		if errors.Is(err, ErrCanceled) {
			m.deliver(task.ID, domain.TaskUpdate{
				Status: domain.StatusPtr(domain.TaskStatusCanceled),
			})
			logger.Info("download canceled before start")
		}
		return
	}

	hook := func(ev ProgressEvent) error {
		return m.onProgress(task.ID, handle, ev)
	}

	res, err := m.engine.Fetch(ctx, buildFetchSpec(task), hook)
	switch {
	case err == nil:
		update := domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusCompleted),
			Progress: domain.Float64Ptr(100),
		}
		if res != nil {
			if res.OutputFile != "" {
				update.OutputFile = domain.StringPtr(res.OutputFile)
			}
			if res.Title != "" {
				update.Title = domain.StringPtr(res.Title)
			}
		}
		m.deliver(task.ID, update)
		logger.Info("download completed")
		m.archiveResult(ctx, task, res, logger)
	case errors.Is(err, ErrCanceled):
		m.deliver(task.ID, domain.TaskUpdate{
			Status: domain.StatusPtr(domain.TaskStatusCanceled),
		})
		logger.Info("download canceled by user")
	case errors.Is(err, errShutdown):
		logger.Info("download interrupted by shutdown")
	default:
		msg := SanitizeError(err.Error())
		m.deliver(task.ID, domain.TaskUpdate{
			Status:       domain.StatusPtr(domain.TaskStatusError),
			ErrorMessage: domain.StringPtr(msg),
		})
		logger.Errorf("download failed: %s", msg)
	}
}

// onProgress is the progress hook, invoked synchronously by the engine on the
// worker goroutine for every report.
func (m *manager) onProgress(taskID string, handle *taskHandle, ev ProgressEvent) error {
	if err := handle.wait(); err != nil {
		return err
	}

	switch ev.Kind {
	case EventFinished:
		// Post-processing may still follow, so the status stays downloading.
		update := domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusDownloading),
			Progress: domain.Float64Ptr(100),
		}
		if ev.Filename != "" {
			update.OutputFile = domain.StringPtr(ev.Filename)
		}
		m.deliver(taskID, update)
	default:
		update := domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusDownloading),
			Progress: domain.Float64Ptr(Progress(ev.DownloadedBytes, ev.TotalBytes)),
			Speed:    domain.StringPtr(FormatSpeed(ev.Speed)),
		}
		if ev.ETA > 0 {
			update.ETA = domain.StringPtr(ev.ETA.Truncate(time.Second).String())
		}
		if ev.TotalBytes > 0 {
			update.TotalSize = domain.StringPtr(humanize.Bytes(uint64(ev.TotalBytes)))
		}
		if ev.DownloadedBytes > 0 {
			update.DownloadedSize = domain.StringPtr(humanize.Bytes(uint64(ev.DownloadedBytes)))
		}
		if ev.Title != "" {
			update.Title = domain.StringPtr(ev.Title)
		}
		m.deliver(taskID, update)
	}
	return nil
}

// deliver pushes an update into the drain loop. Safe from any worker; the
// channel preserves per-task order because each task has a single producer.
func (m *manager) deliver(taskID string, update domain.TaskUpdate) {
	m.updates <- delivery{taskID: taskID, update: update}
}

// archiveResult uploads the finished file to object storage when configured.
// Failures are logged; the task stays completed either way.
func (m *manager) archiveResult(ctx context.Context, task domain.Task, res *Result, logger *logrus.Entry) {
	if m.archive == nil || res == nil || res.OutputFile == "" {
		return
	}

	opts := m.cfg.UploadOptions
	prefix := strings.Trim(opts.KeyPrefix, "/")
	if prefix == "" {
		opts.KeyPrefix = "task-" + task.ID
	} else {
		opts.KeyPrefix = prefix + "/task-" + task.ID
	}

	location, err := m.archive.UploadFile(ctx, res.OutputFile, opts)
	if err != nil {
		logger.Warnf("archive upload: %v", err)
		return
	}
	m.deliver(task.ID, domain.TaskUpdate{
		ArchiveLocation: domain.StringPtr(location),
	})
	logger.Infof("archived to %s", location)
}

var _ Manager = (*manager)(nil)

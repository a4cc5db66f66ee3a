package server

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twaio/twaio/internal/scrape"
)

const (
	// TaskStatusRunning marks a scrape still in progress.
	TaskStatusRunning = TaskStatus("running")
	// TaskStatusCompleted marks a scrape that ended without error.
	TaskStatusCompleted = TaskStatus("completed")
	// TaskStatusFailed marks a scrape that ended with an error.
	TaskStatusFailed = TaskStatus("failed")

	errMessageMissingRunner = "scrape tasks require a runner"
	errMessageEmptyTarget   = "target cannot be empty"
	errMessageInvalidAmount = "amount must be positive"
	logMessageTaskStarted   = "scrape task started"
	logMessageTaskCompleted = "scrape task completed"
	logMessageTaskFailed    = "scrape task failed"
	logFieldTaskID          = "task_id"
	logFieldKind            = "kind"
	logFieldTarget          = "target"
	logFieldWritten         = "written"
	logFieldOutputPath      = "output_path"
)

var (
	errMissingRunner = errors.New(errMessageMissingRunner)
	errEmptyTarget   = errors.New(errMessageEmptyTarget)
	errInvalidAmount = errors.New(errMessageInvalidAmount)
)

// TaskStatus represents the lifecycle state of a scrape task.
type TaskStatus string

// ScrapeJob describes a scrape requested over HTTP.
type ScrapeJob struct {
	Kind   string
	Target string
	Amount int
	Cursor string
}

// ScrapeObserver receives updates while a scrape runs.
type ScrapeObserver interface {
	OutputOpened(path string)
	Progress(progress scrape.Progress)
}

// ScrapeRunner executes one scrape job to completion.
type ScrapeRunner interface {
	RunScrape(ctx context.Context, job ScrapeJob, observer ScrapeObserver) (scrape.Result, error)
}

// TaskSnapshot is a copy of a task's state for external observers.
type TaskSnapshot struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	Amount     int        `json:"amount"`
	Written    int        `json:"written"`
	Pages      int        `json:"pages"`
	Cursor     string     `json:"cursor,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	Exhausted  bool       `json:"exhausted"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type scrapeTask struct {
	snapshot TaskSnapshot
}

// ScrapeTasksConfig customizes a ScrapeTasks instance.
type ScrapeTasksConfig struct {
	Runner      ScrapeRunner
	BaseContext context.Context
	Logger      *zap.Logger
	Clock       func() time.Time
}

// ScrapeTasks runs scrape jobs in the background and tracks their state.
type ScrapeTasks struct {
	runner      ScrapeRunner
	baseContext context.Context
	logger      *zap.Logger
	clock       func() time.Time
	mutex       sync.Mutex
	tasks       map[string]*scrapeTask
	waitGroup   sync.WaitGroup
}

// NewScrapeTasks constructs an empty task tracker around runner.
func NewScrapeTasks(configuration ScrapeTasksConfig) (*ScrapeTasks, error) {
	if configuration.Runner == nil {
		return nil, errMissingRunner
	}
	baseContext := configuration.BaseContext
	if baseContext == nil {
		baseContext = context.Background()
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ScrapeTasks{
		runner:      configuration.Runner,
		baseContext: baseContext,
		logger:      logger,
		clock:       clock,
		tasks:       make(map[string]*scrapeTask),
	}, nil
}

// Start validates job, registers a running task and executes it in the background.
func (tasks *ScrapeTasks) Start(job ScrapeJob) (TaskSnapshot, error) {
	target, err := scrape.LookupTarget(job.Kind)
	if err != nil {
		return TaskSnapshot{}, err
	}
	job.Kind = string(target.Kind)
	job.Target = strings.TrimSpace(job.Target)
	if job.Target == "" {
		return TaskSnapshot{}, errEmptyTarget
	}
	if job.Amount <= 0 {
		return TaskSnapshot{}, errInvalidAmount
	}

	snapshot := tasks.createTask(job)
	tasks.logger.Info(logMessageTaskStarted, zap.String(logFieldTaskID, snapshot.ID), zap.String(logFieldKind, job.Kind), zap.String(logFieldTarget, job.Target))

	tasks.waitGroup.Add(1)
	go func() {
		defer tasks.waitGroup.Done()
		result, runErr := tasks.runner.RunScrape(tasks.baseContext, job, taskObserver{tasks: tasks, identifier: snapshot.ID})
		tasks.completeTask(snapshot.ID, result, runErr)
	}()
	return snapshot, nil
}

// Snapshot returns a copy of the task state.
func (tasks *ScrapeTasks) Snapshot(identifier string) (TaskSnapshot, bool) {
	tasks.mutex.Lock()
	defer tasks.mutex.Unlock()

	task, exists := tasks.tasks[identifier]
	if !exists {
		return TaskSnapshot{}, false
	}
	return task.copySnapshot(), true
}

// List returns every task ordered by start time.
func (tasks *ScrapeTasks) List() []TaskSnapshot {
	tasks.mutex.Lock()
	snapshots := make([]TaskSnapshot, 0, len(tasks.tasks))
	for _, task := range tasks.tasks {
		snapshots = append(snapshots, task.copySnapshot())
	}
	tasks.mutex.Unlock()

	sort.Slice(snapshots, func(left, right int) bool {
		if snapshots[left].StartedAt.Equal(snapshots[right].StartedAt) {
			return snapshots[left].ID < snapshots[right].ID
		}
		return snapshots[left].StartedAt.Before(snapshots[right].StartedAt)
	})
	return snapshots
}

// Wait blocks until every background task has finished.
func (tasks *ScrapeTasks) Wait() {
	tasks.waitGroup.Wait()
}

func (tasks *ScrapeTasks) createTask(job ScrapeJob) TaskSnapshot {
	tasks.mutex.Lock()
	defer tasks.mutex.Unlock()

	task := &scrapeTask{snapshot: TaskSnapshot{
		ID:        uuid.NewString(),
		Kind:      job.Kind,
		Target:    job.Target,
		Amount:    job.Amount,
		Cursor:    job.Cursor,
		Status:    TaskStatusRunning,
		StartedAt: tasks.clock(),
	}}
	tasks.tasks[task.snapshot.ID] = task
	return task.copySnapshot()
}

func (tasks *ScrapeTasks) update(identifier string, apply func(snapshot *TaskSnapshot)) {
	tasks.mutex.Lock()
	defer tasks.mutex.Unlock()

	task, exists := tasks.tasks[identifier]
	if !exists {
		return
	}
	apply(&task.snapshot)
}

func (tasks *ScrapeTasks) completeTask(identifier string, result scrape.Result, runErr error) {
	finishedAt := tasks.clock()
	var completed TaskSnapshot
	tasks.update(identifier, func(snapshot *TaskSnapshot) {
		snapshot.Written = result.Written
		snapshot.Pages = result.Pages
		snapshot.Exhausted = result.Exhausted
		if result.Cursor != "" {
			snapshot.Cursor = result.Cursor
		}
		snapshot.FinishedAt = &finishedAt
		if runErr != nil {
			snapshot.Status = TaskStatusFailed
			snapshot.Error = runErr.Error()
		} else {
			snapshot.Status = TaskStatusCompleted
		}
		completed = *snapshot
	})

	fields := []zap.Field{
		zap.String(logFieldTaskID, identifier),
		zap.Int(logFieldWritten, completed.Written),
		zap.String(logFieldOutputPath, completed.OutputPath),
	}
	if runErr != nil {
		tasks.logger.Error(logMessageTaskFailed, append(fields, zap.Error(runErr))...)
		return
	}
	tasks.logger.Info(logMessageTaskCompleted, fields...)
}

func (task *scrapeTask) copySnapshot() TaskSnapshot {
	copied := task.snapshot
	if task.snapshot.FinishedAt != nil {
		finishedAt := *task.snapshot.FinishedAt
		copied.FinishedAt = &finishedAt
	}
	return copied
}

type taskObserver struct {
	tasks      *ScrapeTasks
	identifier string
}

func (observer taskObserver) OutputOpened(path string) {
	observer.tasks.update(observer.identifier, func(snapshot *TaskSnapshot) {
		snapshot.OutputPath = path
	})
}

func (observer taskObserver) Progress(progress scrape.Progress) {
	observer.tasks.update(observer.identifier, func(snapshot *TaskSnapshot) {
		snapshot.Written = progress.Written
		snapshot.Pages = progress.Pages
		snapshot.Cursor = progress.Cursor
	})
}

// Package progress tracks generation jobs for polling clients.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// maxActivities bounds the per-job activity log; older entries are dropped.
const maxActivities = 10

// Activity is one timestamped progress message.
type Activity struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time view of a job, safe to hand to callers.
type Snapshot struct {
	JobID            string     `json:"job_id"`
	FileName         string     `json:"file_name"`
	Status           Status     `json:"status"`
	Percent          int        `json:"percent"`
	CurrentActivity  string     `json:"current_activity"`
	CurrentSheet     string     `json:"current_sheet,omitempty"`
	TotalBatches     int        `json:"total_batches"`
	CompletedBatches int        `json:"completed_batches"`
	Activities       []Activity `json:"recent_activities"`
	Error            string     `json:"error,omitempty"`
	OutputPath       string     `json:"-"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type job struct {
	fileName         string
	status           Status
	currentActivity  string
	currentSheet     string
	totalBatches     int
	completedBatches int
	activities       []Activity
	err              string
	outputPath       string
	startedAt        time.Time
	updatedAt        time.Time
}

// Tracker holds job state behind a lock. Updates for unknown job IDs are
// logged and dropped rather than creating ghost entries.
type Tracker struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		jobs:   make(map[string]*job),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers a new job in the processing state.
func (t *Tracker) Start(jobID, fileName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	j := &job{
		fileName:        fileName,
		status:          StatusProcessing,
		currentActivity: "Starting analysis",
		startedAt:       now,
		updatedAt:       now,
	}
	j.activities = appendActivity(j.activities, "Starting analysis", now)
	t.jobs[jobID] = j
}

// SetTotalBatches records how many classification batches the job will run.
func (t *Tracker) SetTotalBatches(jobID string, total int) {
	t.update(jobID, func(j *job, now time.Time) {
		j.totalBatches = total
	})
}

// BatchStart marks the beginning of one batch.
func (t *Tracker) BatchStart(jobID, sheet, message string) {
	t.update(jobID, func(j *job, now time.Time) {
		j.currentSheet = sheet
		j.currentActivity = message
		j.activities = appendActivity(j.activities, message, now)
	})
}

// BatchComplete marks one batch finished.
func (t *Tracker) BatchComplete(jobID string) {
	t.update(jobID, func(j *job, now time.Time) {
		j.completedBatches++
	})
}

// Waiting records a rate-limit or inter-batch pause so polling clients see
// the job is alive, not stuck.
func (t *Tracker) Waiting(jobID, message string) {
	t.update(jobID, func(j *job, now time.Time) {
		j.currentActivity = message
		j.activities = appendActivity(j.activities, message, now)
	})
}

// Complete marks the job finished and records where its output lives.
func (t *Tracker) Complete(jobID, outputPath string) {
	t.update(jobID, func(j *job, now time.Time) {
		j.status = StatusCompleted
		j.currentActivity = "Completed"
		j.outputPath = outputPath
		j.activities = appendActivity(j.activities, "Completed", now)
	})
}

// Fail marks the job failed.
func (t *Tracker) Fail(jobID string, err error) {
	t.update(jobID, func(j *job, now time.Time) {
		j.status = StatusFailed
		j.currentActivity = "Failed"
		if err != nil {
			j.err = err.Error()
		}
		j.activities = appendActivity(j.activities, "Failed: "+j.err, now)
	})
}

// Get returns a snapshot of the job, or false when the ID is unknown.
func (t *Tracker) Get(jobID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		JobID:            jobID,
		FileName:         j.fileName,
		Status:           j.status,
		Percent:          percent(j),
		CurrentActivity:  j.currentActivity,
		CurrentSheet:     j.currentSheet,
		TotalBatches:     j.totalBatches,
		CompletedBatches: j.completedBatches,
		Activities:       append([]Activity(nil), j.activities...),
		Error:            j.err,
		OutputPath:       j.outputPath,
		StartedAt:        j.startedAt,
		UpdatedAt:        j.updatedAt,
	}, true
}

// Remove discards one job's entry, whatever its state. Reports whether the
// job was known.
func (t *Tracker) Remove(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[jobID]; !ok {
		return false
	}
	delete(t.jobs, jobID)
	return true
}

// Cleanup removes terminal jobs older than maxAge and returns how many were
// dropped.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	removed := 0
	for id, j := range t.jobs {
		if j.status != StatusProcessing && j.updatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) update(jobID string, fn func(j *job, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[jobID]
	if !ok {
		t.logger.Warn("progress update for unknown job", zap.String("job_id", jobID))
		return
	}
	now := t.now()
	fn(j, now)
	j.updatedAt = now
}

// percent derives completion from batch counts. Classification occupies the
// 20..90 band; the remainder is reserved for extraction before and assembly
// after, so the bar never hits 100 until the workbook is written.
func percent(j *job) int {
	if j.status == StatusCompleted {
		return 100
	}
	if j.totalBatches <= 0 {
		return 0
	}
	p := 20 + 70*j.completedBatches/j.totalBatches
	if p > 90 {
		p = 90
	}
	return p
}

func appendActivity(activities []Activity, message string, at time.Time) []Activity {
	activities = append(activities, Activity{Message: message, At: at})
	if len(activities) > maxActivities {
		activities = activities[len(activities)-maxActivities:]
	}
	return activities
}

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// defaultWeeklyGracePeriod is 6 days - prevents duplicate runs within the
// same week when the hourly check fires more than once.
const defaultWeeklyGracePeriod = 6 * 24 * time.Hour

// WeeklyTask runs once per week at a specific day and hour. The affinity
// decay pass is the canonical user.
type WeeklyTask struct {
	// Name identifies the task for logging.
	Name string

	// Day is the day of the week to run (default: Sunday).
	Day time.Weekday

	// Hour is the hour of the day to run (0-23, default: 0).
	Hour int

	// GracePeriod prevents duplicate runs within this duration
	// (default: 6 days).
	GracePeriod time.Duration

	// Run executes the task.
	Run func(ctx context.Context, logger *zerolog.Logger) error

	// lastRun tracks when the task last executed successfully.
	lastRun time.Time
}

// WeeklyScheduler manages a collection of weekly tasks. Drive it from a
// ticker task that calls CheckAndRun.
type WeeklyScheduler struct {
	tasks  []*WeeklyTask
	logger *zerolog.Logger
	now    func() time.Time
}

// NewWeeklyScheduler creates a new weekly task scheduler.
func NewWeeklyScheduler(logger *zerolog.Logger) *WeeklyScheduler {
	return &WeeklyScheduler{logger: logger, now: time.Now}
}

// AddTask adds a task to the scheduler.
func (ws *WeeklyScheduler) AddTask(task *WeeklyTask) {
	if task.GracePeriod == 0 {
		task.GracePeriod = defaultWeeklyGracePeriod
	}

	ws.tasks = append(ws.tasks, task)
}

// SetLastRun seeds a task's last run time, e.g. from persisted state.
func (ws *WeeklyScheduler) SetLastRun(taskName string, lastRun time.Time) {
	for _, task := range ws.tasks {
		if task.Name == taskName {
			task.lastRun = lastRun

			return
		}
	}
}

// CheckAndRun checks all tasks and runs any that are due.
func (ws *WeeklyScheduler) CheckAndRun(ctx context.Context) {
	for _, task := range ws.tasks {
		ws.checkAndRunTask(ctx, task)
	}
}

func (ws *WeeklyScheduler) checkAndRunTask(ctx context.Context, task *WeeklyTask) {
	now := ws.now()

	if !ShouldRunWeekly(now, task.Day, task.Hour, task.lastRun, task.GracePeriod) {
		return
	}

	logger := ws.logger.With().Str(logFieldTask, task.Name).Logger()
	logger.Info().Msgf("starting weekly %s", task.Name)

	if err := task.Run(ctx, &logger); err != nil {
		logger.Error().Err(err).Msgf("failed to run weekly %s", task.Name)

		return
	}

	task.lastRun = now
}

// ShouldRunWeekly reports whether a weekly task is due: right day, right
// hour, and outside the grace period since its last run.
func ShouldRunWeekly(
	now time.Time,
	day time.Weekday,
	hour int,
	lastRun time.Time,
	gracePeriod time.Duration,
) bool {
	if now.Weekday() != day {
		return false
	}

	if now.Hour() != hour {
		return false
	}

	if gracePeriod == 0 {
		gracePeriod = defaultWeeklyGracePeriod
	}

	if !lastRun.IsZero() && now.Sub(lastRun) <= gracePeriod {
		return false
	}

	return true
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const errFmtTickerLoop = "ticker loop %s: %w"

// Task is a function triggered on a fixed interval. Each task gets its
// own ticker so a slow pass never starves the others' schedules.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)

	// RunOnStart fires the task immediately when the loop starts,
	// before the first tick.
	RunOnStart bool
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks are the interval-triggered tasks to run.
	Tasks []Task

	// OnStop is called once when the loop exits.
	OnStop func()

	// Logger for the worker.
	Logger *zerolog.Logger
}

// TickerLoop runs the configured tasks until the context is canceled.
// Tasks run sequentially on the loop goroutine; overlapping executions of
// the same task are therefore impossible.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting ticker loop")

	defer func() {
		if cfg.OnStop != nil {
			cfg.OnStop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")
	}()

	if len(cfg.Tasks) == 0 {
		<-ctx.Done()

		return fmt.Errorf(errFmtTickerLoop, cfg.Name, ctx.Err())
	}

	tickers := make([]*time.Ticker, len(cfg.Tasks))

	for i, task := range cfg.Tasks {
		if task.Interval > 0 {
			tickers[i] = time.NewTicker(task.Interval)
		}

		if task.RunOnStart && task.Run != nil {
			logger.Debug().Str(logFieldTask, task.Name).Msg("running initial task")
			task.Run(ctx)
		}
	}

	defer func() {
		for _, t := range tickers {
			if t != nil {
				t.Stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf(errFmtTickerLoop, cfg.Name, ctx.Err())
		default:
		}

		checkAndRunTasks(ctx, cfg.Tasks, tickers, logger)

		if err := Wait(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// pollInterval is the sleep duration between ticker checks to prevent
// busy-waiting.
const pollInterval = 100 * time.Millisecond

func checkAndRunTasks(ctx context.Context, tasks []Task, tickers []*time.Ticker, logger *zerolog.Logger) {
	for i, task := range tasks {
		if tickers[i] == nil || task.Run == nil {
			continue
		}

		select {
		case <-tickers[i].C:
			logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
			task.Run(ctx)
		default:
			// Non-blocking check
		}
	}
}

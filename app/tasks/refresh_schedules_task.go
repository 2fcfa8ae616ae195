package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RefreshSchedulesTask advances stale airing times locally, then asks the
// catalog for the next episode of every tracked anime. Episodes still inside
// the reconciler's release hold are left for the notifier.
type RefreshSchedulesTask struct {
	Task
	refresher ScheduleRefresher
}

func NewRefreshSchedulesTask(refresher ScheduleRefresher) *RefreshSchedulesTask {
	return &RefreshSchedulesTask{
		Task:      NewTask(TaskTypeRefreshSchedules, "watchlist"),
		refresher: refresher,
	}
}

func (t *RefreshSchedulesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if fixed := t.refresher.FixStaleAiringTimes(time.Now().Unix()); fixed > 0 {
		slog.Debug("Advanced stale airing times", "count", fixed)
	}

	if err := t.refresher.RefreshSchedules(ctx); err != nil {
		return fmt.Errorf("failed to refresh schedules: %w", err)
	}

	slog.Debug("RefreshSchedulesTask completed", "id", t.ID, "duration", t.GetDuration())
	return nil
}

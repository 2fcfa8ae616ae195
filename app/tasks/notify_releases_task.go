package tasks

import (
	"context"
	"log/slog"
	"time"
)

// NotifyReleasesTask never retries: a missed poll is covered by the next tick
type NotifyReleasesTask struct {
	Task
	poller ReleasePoller
	now    func() time.Time
}

func NewNotifyReleasesTask(poller ReleasePoller) *NotifyReleasesTask {
	task := NewTask(TaskTypeNotifyReleases, "releases")
	task.MaxRetries = 0
	return &NotifyReleasesTask{
		Task:   task,
		poller: poller,
		now:    time.Now,
	}
}

func (t *NotifyReleasesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if sent := t.poller.Poll(ctx, t.now()); sent > 0 {
		slog.Info("Release notifications sent", "count", sent)
	}
	return nil
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type RefillCalendarTask struct {
	Task
	Force     bool
	refresher ScheduleRefresher
}

func NewRefillCalendarTask(refresher ScheduleRefresher, force bool) *RefillCalendarTask {
	subject := "calendar"
	if force {
		subject = "calendar:force"
	}
	return &RefillCalendarTask{
		Task:      NewTask(TaskTypeRefillCalendar, subject),
		Force:     force,
		refresher: refresher,
	}
}

func (t *RefillCalendarTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	updated, err := t.refresher.RefillCalendar(ctx, t.Force)
	if err != nil {
		return fmt.Errorf("failed to refill calendar: %w", err)
	}

	slog.Debug("RefillCalendarTask completed", "id", t.ID, "updated", updated, "force", t.Force)
	return nil
}

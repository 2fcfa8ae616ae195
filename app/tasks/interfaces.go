package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/anitrack/app/watchlist"
)

// TaskSchedulerInterface is what the application and the HTTP layer use to
// drive background work.
//
//	scheduler := NewScheduler(workerCount)
//	scheduler.Register(Job{Type: TaskTypeNotifyReleases, Interval: time.Minute, New: ...})
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.RunNow(TaskTypeRefillCalendar)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RunNow(taskType TaskType) error
}

// ScheduleRefresher is the part of the watch list reconciler the schedule tasks drive
type ScheduleRefresher interface {
	FixStaleAiringTimes(now int64) int
	RefreshSchedules(ctx context.Context) error
	RefillCalendar(ctx context.Context, force bool) (int, error)
}

type ReleasePoller interface {
	Poll(ctx context.Context, now time.Time) int
}

type AccountSyncer interface {
	Sync(ctx context.Context) (watchlist.Snapshot, error)
}

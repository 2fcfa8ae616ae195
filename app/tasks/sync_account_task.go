package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type SyncAccountTask struct {
	Task
	syncer AccountSyncer
}

func NewSyncAccountTask(syncer AccountSyncer, userID string) *SyncAccountTask {
	return &SyncAccountTask{
		Task:   NewTask(TaskTypeSyncAccount, userID),
		syncer: syncer,
	}
}

func (t *SyncAccountTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	snapshot, err := t.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync account: %w", err)
	}

	slog.Debug("SyncAccountTask completed", "user", t.Subject, "anime_count", len(snapshot.Anime))
	return nil
}

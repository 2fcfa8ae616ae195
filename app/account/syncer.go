package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/watchlist"
)

// WatchingListField is the account document field holding the watch list
const WatchingListField = "watchingList"

// Store reads whole account documents and merge-writes individual fields
type Store interface {
	ReadDocument(ctx context.Context, userID string) (map[string]json.RawMessage, error)
	MergeDocument(ctx context.Context, userID string, fields map[string]json.RawMessage) error
}

// Merger is the part of the Reconciler the syncer drives
type Merger interface {
	SyncWithRemoteStore(remote []anime.TrackedAnime) watchlist.Snapshot
}

type Syncer struct {
	store  Store
	merger Merger
	userID string
}

func NewSyncer(store Store, merger Merger, userID string) *Syncer {
	return &Syncer{store: store, merger: merger, userID: userID}
}

func (s *Syncer) Enabled() bool {
	return s.userID != ""
}

// Sync pulls the remote watch list, merges it locally and writes the merged list back
func (s *Syncer) Sync(ctx context.Context) (watchlist.Snapshot, error) {
	if !s.Enabled() {
		return watchlist.Snapshot{}, fmt.Errorf("account sync is disabled: no user configured")
	}

	doc, err := s.store.ReadDocument(ctx, s.userID)
	if err != nil {
		return watchlist.Snapshot{}, fmt.Errorf("failed to read account document: %w", err)
	}

	var remote []anime.TrackedAnime
	if raw, ok := doc[WatchingListField]; ok {
		if err := json.Unmarshal(raw, &remote); err != nil {
			slog.Warn("Ignoring corrupt remote watching list", "user", s.userID, "error", err)
			remote = nil
		}
	}

	merged := s.merger.SyncWithRemoteStore(remote)

	data, err := json.Marshal(merged.Anime)
	if err != nil {
		return merged, fmt.Errorf("failed to encode watching list: %w", err)
	}

	if err := s.store.MergeDocument(ctx, s.userID, map[string]json.RawMessage{WatchingListField: data}); err != nil {
		return merged, fmt.Errorf("failed to write account document: %w", err)
	}

	slog.Debug("Account synced", "user", s.userID, "remote", len(remote), "merged", len(merged.Anime))
	return merged, nil
}

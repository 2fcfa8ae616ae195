package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/database"
)

const NotifiedKey = "notifiedReleases"

type Notification struct {
	AnimeID  int
	Episode  int
	Title    string
	ImageURL string
}

func (n Notification) Message() string {
	return fmt.Sprintf("%s episode %d just released!", n.Title, n.Episode)
}

// Sink delivers one notification
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SnapshotSource provides the current watch list
type SnapshotSource interface {
	Anime() []anime.TrackedAnime
}

// Notifier announces episodes that aired within the grace window, once per (anime, episode)
type Notifier struct {
	source SnapshotSource
	sink   Sink
	store  database.KVRepository
	grace  time.Duration

	mu       sync.Mutex
	notified map[string]bool
	loaded   bool
}

func NewNotifier(source SnapshotSource, sink Sink, store database.KVRepository, grace time.Duration) *Notifier {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	return &Notifier{
		source:   source,
		sink:     sink,
		store:    store,
		grace:    grace,
		notified: make(map[string]bool),
	}
}

// Poll sends notifications for releases that aired in [now-grace, now] and returns how many were sent
func (n *Notifier) Poll(ctx context.Context, now time.Time) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.loadLocked(); err != nil {
		slog.Warn("Skipping release poll, notified releases unavailable", "error", err)
		return 0
	}

	sent := 0
	grace := int64(n.grace / time.Second)
	for _, a := range n.source.Anime() {
		if !a.Next.IsKnown() {
			continue
		}

		elapsed := now.Unix() - a.Next.AiringAt
		if elapsed < 0 || elapsed >= grace {
			continue
		}

		key := releaseKey(a.ID, a.Next.Episode)
		if n.notified[key] {
			continue
		}

		notification := Notification{
			AnimeID:  a.ID,
			Episode:  a.Next.Episode,
			Title:    a.Title.Display(),
			ImageURL: a.CoverImage,
		}

		if err := n.sink.Send(ctx, notification); err != nil {
			slog.Warn("Release notification failed", "anime_id", a.ID, "episode", a.Next.Episode, "error", err)
			continue
		}

		n.notified[key] = true
		if err := n.saveLocked(); err != nil {
			slog.Error("Failed to persist notified releases", "error", err)
		}

		slog.Info("Release notified", "anime_id", a.ID, "episode", a.Next.Episode, "title", notification.Title)
		sent++
	}

	return sent
}

// Clear forgets every notified release
func (n *Notifier) Clear() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notified = make(map[string]bool)
	n.loaded = true
	return n.store.Delete(NotifiedKey)
}

// loadLocked reads the persisted set once. A read error leaves the set
// unloaded so nothing is saved over the stored value until a later poll succeeds.
func (n *Notifier) loadLocked() error {
	if n.loaded {
		return nil
	}

	raw, ok, err := n.store.Get(NotifiedKey)
	if err != nil {
		return fmt.Errorf("failed to read notified releases: %w", err)
	}
	n.loaded = true
	if !ok {
		return nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		slog.Warn("Ignoring corrupt notified releases", "error", err)
		return nil
	}
	for _, k := range keys {
		n.notified[k] = true
	}
	return nil
}

func (n *Notifier) saveLocked() error {
	keys := make([]string, 0, len(n.notified))
	for k := range n.notified {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return n.store.Set(NotifiedKey, string(data))
}

func releaseKey(id, episode int) string {
	return fmt.Sprintf("%d-%d", id, episode)
}

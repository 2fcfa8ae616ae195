package watchlist

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/database"
)

const (
	WatchingListKey = "watchingList"
	CalendarListKey = "calendarList"
)

// Storage persists the watch list and calendar in the KV store
type Storage struct {
	store database.KVRepository
}

func NewStorage(store database.KVRepository) *Storage {
	return &Storage{store: store}
}

// Load reads both lists. Missing or corrupt values load as empty and are
// overwritten by the next Save.
func (s *Storage) Load() ([]anime.TrackedAnime, []anime.CalendarEntry) {
	var list []anime.TrackedAnime
	if !s.read(WatchingListKey, &list) {
		list = nil
	}

	var entries []anime.CalendarEntry
	if !s.read(CalendarListKey, &entries) {
		entries = nil
	}

	return list, entries
}

func (s *Storage) Save(snapshot Snapshot) error {
	if err := s.write(WatchingListKey, snapshot.Anime); err != nil {
		return err
	}
	return s.write(CalendarListKey, snapshot.Calendar)
}

// Listener persists every committed change
func (s *Storage) Listener() Listener {
	return func(ev Event) {
		if err := s.Save(ev.Snapshot); err != nil {
			slog.Error("Failed to persist watching list", "event", ev.Kind, "error", err)
		}
	}
}

func (s *Storage) read(key string, v any) bool {
	raw, ok, err := s.store.Get(key)
	if err != nil {
		slog.Warn("Failed to read stored list", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		slog.Warn("Ignoring corrupt stored list", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Storage) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.store.Set(key, string(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

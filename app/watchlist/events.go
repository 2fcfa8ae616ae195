package watchlist

import "github.com/lysyi3m/anitrack/app/anime"

type EventKind string

const (
	EventLoaded    EventKind = "loaded"
	EventAdded     EventKind = "added"
	EventRemoved   EventKind = "removed"
	EventFavorite  EventKind = "favorite"
	EventAdjusted  EventKind = "adjusted"
	EventLinked    EventKind = "linked"
	EventCalendar  EventKind = "calendar"
	EventSynced    EventKind = "synced"
	EventRefreshed EventKind = "refreshed"
	EventCleared   EventKind = "cleared"
)

// Snapshot is an immutable copy of the watch list and its calendar
type Snapshot struct {
	Anime    []anime.TrackedAnime  `json:"watchingList"`
	Calendar []anime.CalendarEntry `json:"calendarList"`
}

// Event describes one committed mutation. RefreshNeeded is set when the
// mutation changed the set of tracked ids.
type Event struct {
	Kind          EventKind
	AnimeID       int
	Snapshot      Snapshot
	RefreshNeeded bool
}

// Listener receives events in mutation order. Listeners may read from the
// Reconciler but must not mutate it.
type Listener func(Event)

// InCalendar reports whether any calendar entry belongs to id
func (s Snapshot) InCalendar(id int) bool {
	for _, e := range s.Calendar {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s Snapshot) Find(id int) (anime.TrackedAnime, bool) {
	for _, a := range s.Anime {
		if a.ID == id {
			return a, true
		}
	}
	return anime.TrackedAnime{}, false
}

package calendar

import (
	"fmt"
	"time"

	"github.com/lysyi3m/anitrack/app/anime"
)

type Mode string

const (
	ModeAll  Mode = "all"
	ModeNext Mode = "next" // only the soonest upcoming episode per anime
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeNext:
		return ModeNext, nil
	default:
		return "", fmt.Errorf("unknown calendar mode %q", s)
	}
}

// Window is an inclusive time range; its location decides day boundaries.
// The zero Window is unbounded and buckets in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) location() *time.Location {
	if w.Start.IsZero() {
		return time.UTC
	}
	return w.Start.Location()
}

func (w Window) contains(ts int64) bool {
	if !w.Start.IsZero() && ts < w.Start.Unix() {
		return false
	}
	if !w.End.IsZero() && ts > w.End.Unix() {
		return false
	}
	return true
}

type Day struct {
	Date    string                `json:"date"` // YYYY-MM-DD in the window location
	Weekday string                `json:"weekday"`
	Entries []anime.CalendarEntry `json:"entries"`
}

// Meta describes the channel of a rendered calendar feed
type Meta struct {
	Title       string
	Link        string
	SelfLink    string
	Description string
	Version     string
}

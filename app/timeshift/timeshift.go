// Package timeshift moves an anime's release times to match when the user
// actually gets to watch it, and restores the catalog times on demand.
package timeshift

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/anitrack/app/anime"
)

var (
	ErrInvalidTime = errors.New("invalid release time")
	ErrFinished    = errors.New("finished anime cannot be adjusted")
	ErrNoReference = errors.New("anime has no known release time to adjust")
)

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// SetExactTime shifts the whole schedule so the upcoming episode airs at newTS.
// The upcoming episode is the first schedule node after now, or next when the
// schedule has nothing left. The pre-adjustment state is captured once.
func SetExactTime(a anime.TrackedAnime, newTS, now int64) (anime.TrackedAnime, error) {
	if a.IsFinished() {
		return a, ErrFinished
	}
	if newTS <= 0 {
		return a, fmt.Errorf("%w: %d", ErrInvalidTime, newTS)
	}

	reference, ok := Reference(a, now)
	if !ok {
		return a, ErrNoReference
	}

	delta := newTS - reference

	out := a.Clone()
	if out.Original == nil {
		out.Original = &anime.ScheduleSnapshot{
			Next:     a.Next,
			Schedule: slices.Clone(a.FullAiringSchedule),
		}
	}
	out.FullAiringSchedule = anime.ShiftSchedule(a.FullAiringSchedule, delta)
	out.Next = a.Next.Shift(delta)
	out.UserTimeOffsetSeconds += delta

	return out, nil
}

// AdjustByOffset shifts the schedule by exactly delta seconds. It is measured
// from the same reference SetExactTime uses, falling back to now.
func AdjustByOffset(a anime.TrackedAnime, delta, now int64) (anime.TrackedAnime, error) {
	base, ok := Reference(a, now)
	if !ok {
		base = now
	}
	return SetExactTime(a, base+delta, now)
}

// Reference is the airing time a manual change is measured from: the first
// schedule node after now, else the known next airing.
func Reference(a anime.TrackedAnime, now int64) (int64, bool) {
	if node, ok := anime.NextAfter(a.FullAiringSchedule, now); ok {
		return node.AiringAt, true
	}
	if a.Next.IsKnown() {
		return a.Next.AiringAt, true
	}
	return 0, false
}

// ResetToOriginal restores the captured catalog times. Anime that were never
// adjusted are returned unchanged.
func ResetToOriginal(a anime.TrackedAnime) anime.TrackedAnime {
	if a.Original == nil {
		return a
	}

	out := a.Clone()
	out.Next = a.Original.Next
	out.FullAiringSchedule = slices.Clone(a.Original.Schedule)
	out.Original = nil
	out.UserTimeOffsetSeconds = 0

	return out
}

// ParseLocalTime parses a datetime-local form value, an RFC3339 timestamp or
// unix seconds into unix seconds.
func ParseLocalTime(value string, loc *time.Location) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidTime)
	}
	if loc == nil {
		loc = time.Local
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidTime, secs)
		}
		return secs, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return positive(t.Unix())
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return positive(t.Unix())
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}

func positive(ts int64) (int64, error) {
	if ts <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTime, ts)
	}
	return ts, nil
}

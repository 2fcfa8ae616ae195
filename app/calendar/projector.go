package calendar

import (
	"cmp"
	"slices"
	"time"

	"github.com/lysyi3m/anitrack/app/anime"
)

// Entries derives the calendar entries of one anime from its schedule. Anime
// without a schedule contribute their next episode when it is known.
func Entries(a anime.TrackedAnime) []anime.CalendarEntry {
	entry := func(episode int, airingAt int64) anime.CalendarEntry {
		return anime.CalendarEntry{
			ID:         a.ID,
			Episode:    episode,
			AiringAt:   airingAt,
			Title:      a.Title.Display(),
			CoverImage: a.CoverImage,
			Favorited:  a.Favorited,
		}
	}

	if len(a.FullAiringSchedule) == 0 {
		if a.Next.IsKnown() {
			return []anime.CalendarEntry{entry(a.Next.Episode, a.Next.AiringAt)}
		}
		return nil
	}

	entries := make([]anime.CalendarEntry, 0, len(a.FullAiringSchedule))
	for _, n := range a.FullAiringSchedule {
		entries = append(entries, entry(n.Episode, n.AiringAt))
	}
	return entries
}

// WeekWindow returns a window of days starting at local midnight of start
func WeekWindow(start time.Time, days int, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	if days <= 0 {
		days = 7
	}
	local := start.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{
		Start: midnight,
		End:   midnight.AddDate(0, 0, days).Add(-time.Second),
	}
}

// Project buckets entries by local day. The result depends only on its input.
func Project(entries []anime.CalendarEntry, window Window, mode Mode, now int64) []Day {
	selected := entries
	if mode == ModeNext {
		selected = soonestPerAnime(entries, now)
	}

	loc := window.location()
	buckets := make(map[string]*Day)
	for _, e := range selected {
		if !window.contains(e.AiringAt) {
			continue
		}
		t := time.Unix(e.AiringAt, 0).In(loc)
		date := t.Format(time.DateOnly)
		day, ok := buckets[date]
		if !ok {
			day = &Day{Date: date, Weekday: t.Weekday().String()}
			buckets[date] = day
		}
		day.Entries = append(day.Entries, e)
	}

	days := make([]Day, 0, len(buckets))
	for _, day := range buckets {
		slices.SortFunc(day.Entries, compareEntries)
		days = append(days, *day)
	}
	slices.SortFunc(days, func(a, b Day) int { return cmp.Compare(a.Date, b.Date) })

	return days
}

func soonestPerAnime(entries []anime.CalendarEntry, now int64) []anime.CalendarEntry {
	best := make(map[int]anime.CalendarEntry)
	for _, e := range entries {
		if e.AiringAt < now {
			continue
		}
		if current, ok := best[e.ID]; ok && compareTime(current, e) <= 0 {
			continue
		}
		best[e.ID] = e
	}

	selected := make([]anime.CalendarEntry, 0, len(best))
	for _, e := range best {
		selected = append(selected, e)
	}
	return selected
}

func compareTime(a, b anime.CalendarEntry) int {
	return cmp.Or(cmp.Compare(a.AiringAt, b.AiringAt), cmp.Compare(a.Episode, b.Episode))
}

// favorites first, then airing time, then id and episode
func compareEntries(a, b anime.CalendarEntry) int {
	if a.Favorited != b.Favorited {
		if a.Favorited {
			return -1
		}
		return 1
	}
	return cmp.Or(
		cmp.Compare(a.AiringAt, b.AiringAt),
		cmp.Compare(a.ID, b.ID),
		cmp.Compare(a.Episode, b.Episode),
	)
}

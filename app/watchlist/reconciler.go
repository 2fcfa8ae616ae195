package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/lysyi3m/anitrack/app/anilist"
	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/calendar"
	"github.com/lysyi3m/anitrack/app/schedule"
	"github.com/lysyi3m/anitrack/app/timeshift"
)

var (
	ErrDuplicate   = errors.New("anime is already in the watching list")
	ErrNotTracked  = errors.New("anime is not in the watching list")
	ErrInvalidLink = errors.New("site link must be an http or https URL")
)

// ScheduleSource is what the Reconciler needs from the schedule fetcher
type ScheduleSource interface {
	Search(ctx context.Context, name string) (*anilist.Media, error)
	GetFullSchedule(ctx context.Context, id int, forceRefresh bool) ([]anime.AiringNode, error)
	GetSchedulesForIDs(ctx context.Context, ids []int) (map[int]schedule.NextAiring, error)
	GetDetails(ctx context.Context, id int) (*anilist.Media, error)
}

// Reconciler owns the watch list and the calendar derived from it. Every
// mutation runs under one lock; remote calls happen outside of it.
type Reconciler struct {
	mu        sync.Mutex
	anime     []anime.TrackedAnime
	calendar  []anime.CalendarEntry
	lastIDs   []int
	listeners []Listener

	// events are numbered under mu and delivered strictly in that order
	emitMu    sync.Mutex
	emitCond  *sync.Cond
	nextSeq   uint64
	delivered uint64

	source      ScheduleSource
	concurrency int
	releaseHold int64 // seconds a just aired episode stays as next
	now         func() time.Time
}

func NewReconciler(source ScheduleSource, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = 4
	}
	r := &Reconciler{
		source:      source,
		concurrency: concurrency,
		now:         time.Now,
	}
	r.emitCond = sync.NewCond(&r.emitMu)
	return r
}

// WithReleaseHold keeps an episode that aired less than hold ago as the next
// airing, so release notifications polled within that window still see it.
func (r *Reconciler) WithReleaseHold(hold time.Duration) *Reconciler {
	r.releaseHold = int64(hold / time.Second)
	return r
}

// WithClock replaces the time source
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

func (r *Reconciler) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Snapshot returns a copy of the current state
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Anime returns a copy of the watch list
func (r *Reconciler) Anime() []anime.TrackedAnime {
	return r.Snapshot().Anime
}

func (r *Reconciler) Get(id int) (anime.TrackedAnime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.anime[i].Clone(), true
	}
	return anime.TrackedAnime{}, false
}

// Load replaces the state with previously persisted data. Duplicate ids keep
// their first occurrence and stale airing times are advanced.
func (r *Reconciler) Load(list []anime.TrackedAnime, entries []anime.CalendarEntry) {
	r.mu.Lock()

	seen := make(map[int]bool, len(list))
	r.anime = make([]anime.TrackedAnime, 0, len(list))
	for _, a := range list {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		r.anime = append(r.anime, a.Clone())
	}

	r.calendar = make([]anime.CalendarEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			r.calendar = append(r.calendar, e)
		}
	}

	r.fixStaleLocked(r.now().Unix())

	r.unlockAndPublish(r.eventLocked(EventLoaded, 0))
}

// Add searches the catalog for name and starts tracking the best match
func (r *Reconciler) Add(ctx context.Context, name string) (anime.TrackedAnime, error) {
	media, err := r.source.Search(ctx, name)
	if err != nil {
		return anime.TrackedAnime{}, err
	}

	if _, tracked := r.Get(media.ID); tracked {
		return anime.TrackedAnime{}, fmt.Errorf("%w: %d", ErrDuplicate, media.ID)
	}

	nodes, err := r.source.GetFullSchedule(ctx, media.ID, false)
	if err != nil {
		slog.Warn("Adding anime without schedule", "anime_id", media.ID, "error", err)
	}

	a := media.ToTracked()
	a.Next = anime.Pending()
	a.FullAiringSchedule = nodes
	a.AddedAt = r.now().Unix()

	r.mu.Lock()
	if r.indexLocked(a.ID) >= 0 {
		r.mu.Unlock()
		return anime.TrackedAnime{}, fmt.Errorf("%w: %d", ErrDuplicate, a.ID)
	}

	r.anime = append(r.anime, a)
	r.calendar = append(r.calendar, calendar.Entries(a)...)
	added := a.Clone()

	r.unlockAndPublish(r.eventLocked(EventAdded, a.ID))

	slog.Info("Anime added", "anime_id", a.ID, "title", a.Title.Display(), "episodes", len(nodes))
	return added, nil
}

// Remove stops tracking id and drops its calendar entries
func (r *Reconciler) Remove(id int) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotTracked, id)
	}

	r.anime = slices.Delete(slices.Clone(r.anime), i, i+1)
	r.removeEntriesLocked(id)

	r.unlockAndPublish(r.eventLocked(EventRemoved, id))
	return nil
}

func (r *Reconciler) ToggleFavorite(id int) (anime.TrackedAnime, error) {
	return r.update(id, EventFavorite, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		a.Favorited = !a.Favorited
		return a, nil
	})
}

func (r *Reconciler) SetExactTime(id int, ts int64) (anime.TrackedAnime, error) {
	now := r.now().Unix()
	return r.update(id, EventAdjusted, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		return timeshift.SetExactTime(a, ts, now)
	})
}

func (r *Reconciler) AdjustByOffset(id int, delta int64) (anime.TrackedAnime, error) {
	now := r.now().Unix()
	return r.update(id, EventAdjusted, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		return timeshift.AdjustByOffset(a, delta, now)
	})
}

func (r *Reconciler) ResetToOriginal(id int) (anime.TrackedAnime, error) {
	return r.update(id, EventAdjusted, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		return timeshift.ResetToOriginal(a), nil
	})
}

// SetSiteURL overrides the catalog link. The catalog link is kept until ResetSiteURL.
func (r *Reconciler) SetSiteURL(id int, link string) (anime.TrackedAnime, error) {
	link = strings.TrimSpace(link)
	u, err := url.ParseRequestURI(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return anime.TrackedAnime{}, fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}

	return r.update(id, EventLinked, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		if !a.SiteURLOverridden {
			a.OriginalSiteURL = a.SiteURL
			a.SiteURLOverridden = true
		}
		a.SiteURL = link
		return a, nil
	})
}

// ResetSiteURL restores the catalog link; anime without an override are unchanged
func (r *Reconciler) ResetSiteURL(id int) (anime.TrackedAnime, error) {
	return r.update(id, EventLinked, func(a anime.TrackedAnime) (anime.TrackedAnime, error) {
		if !a.SiteURLOverridden {
			return a, nil
		}
		a.SiteURL = a.OriginalSiteURL
		a.OriginalSiteURL = ""
		a.SiteURLOverridden = false
		return a, nil
	})
}

// update applies fn to one anime and regenerates its calendar entries when it is in the calendar
func (r *Reconciler) update(id int, kind EventKind, fn func(anime.TrackedAnime) (anime.TrackedAnime, error)) (anime.TrackedAnime, error) {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return anime.TrackedAnime{}, fmt.Errorf("%w: %d", ErrNotTracked, id)
	}

	updated, err := fn(r.anime[i].Clone())
	if err != nil {
		r.mu.Unlock()
		return anime.TrackedAnime{}, err
	}

	r.replaceLocked(i, updated)
	if r.inCalendarLocked(id) {
		r.regenerateLocked(updated)
	}

	result := updated.Clone()
	r.unlockAndPublish(r.eventLocked(kind, id))
	return result, nil
}

// AddToCalendar puts id on the calendar, fetching its schedule first when none is known
func (r *Reconciler) AddToCalendar(ctx context.Context, id int) error {
	current, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotTracked, id)
	}

	var nodes []anime.AiringNode
	fetched := false
	if len(current.FullAiringSchedule) == 0 {
		var err error
		nodes, err = r.source.GetFullSchedule(ctx, id, false)
		if err != nil {
			return err
		}
		fetched = true
	}

	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotTracked, id)
	}

	a := r.anime[i].Clone()
	if fetched && len(a.FullAiringSchedule) == 0 {
		a = withRemoteSchedule(a, nodes)
		r.replaceLocked(i, a)
	}
	r.regenerateLocked(a)

	r.unlockAndPublish(r.eventLocked(EventCalendar, id))
	return nil
}

func (r *Reconciler) RemoveFromCalendar(id int) error {
	r.mu.Lock()
	if r.indexLocked(id) < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotTracked, id)
	}

	r.removeEntriesLocked(id)

	r.unlockAndPublish(r.eventLocked(EventCalendar, id))
	return nil
}

// SyncWithRemoteStore merges a remotely stored list into the local one. Local
// records win for shared ids, remote-only ids are appended in remote order and
// remote duplicates collapse to their first occurrence.
func (r *Reconciler) SyncWithRemoteStore(remote []anime.TrackedAnime) Snapshot {
	r.mu.Lock()

	seen := make(map[int]bool, len(r.anime)+len(remote))
	for _, a := range r.anime {
		seen[a.ID] = true
	}

	merged := slices.Clone(r.anime)
	appended := 0
	for _, a := range remote {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		merged = append(merged, a.Clone())
		r.calendar = append(r.calendar, calendar.Entries(a)...)
		appended++
	}
	r.anime = merged

	ev := r.eventLocked(EventSynced, 0)
	snapshot := ev.Snapshot
	r.unlockAndPublish(ev)

	slog.Info("Watching list synced", "remote", len(remote), "appended", appended, "total", len(snapshot.Anime))
	return snapshot
}

// RefreshSchedules updates the next airing episode of every unfinished anime
// in one catalog round trip. On failure the state is left as it was.
func (r *Reconciler) RefreshSchedules(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]int, 0, len(r.anime))
	for _, a := range r.anime {
		if !a.IsFinished() {
			ids = append(ids, a.ID)
		}
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	results, err := r.source.GetSchedulesForIDs(ctx, ids)
	if err != nil {
		slog.Warn("Schedule refresh failed", "anime_count", len(ids), "error", err)
		return err
	}

	var missing []int
	for _, id := range ids {
		if _, ok := results[id]; !ok {
			missing = append(missing, id)
		}
	}
	details := r.fetchDetails(ctx, missing)

	r.mu.Lock()
	now := r.now().Unix()
	updated := 0
	for i, a := range r.anime {
		if a.IsFinished() {
			continue
		}

		next, ok := results[a.ID]
		if !ok {
			media, found := details[a.ID]
			if !found {
				continue
			}
			a = a.Clone()
			applyMetadata(&a, media)
			r.replaceLocked(i, a)
			updated++
			continue
		}

		a = a.Clone()
		if !r.holdingLocked(a, now) || next.Episode == a.Next.Episode {
			a.Next = anime.Known(next.Episode, next.AiringAt+a.UserTimeOffsetSeconds)
			if a.Original != nil {
				a.Original.Next = anime.Known(next.Episode, next.AiringAt)
			}
		}
		applyMetadata(&a, next.Media)

		r.replaceLocked(i, a)
		if r.inCalendarLocked(a.ID) {
			r.regenerateLocked(a)
		}
		updated++
	}

	r.unlockAndPublish(r.eventLocked(EventRefreshed, 0))

	slog.Debug("Schedules refreshed", "requested", len(ids), "updated", updated, "details_fallback", len(details))
	return nil
}

// fetchDetails looks up metadata for anime the batched refresh returned
// nothing for, typically because they stopped airing. Failures are skipped.
func (r *Reconciler) fetchDetails(ctx context.Context, ids []int) map[int]anilist.Media {
	details := make(map[int]anilist.Media, len(ids))
	if len(ids) == 0 {
		return details
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.concurrency)
	for _, id := range ids {
		p.Go(func() {
			media, err := r.source.GetDetails(ctx, id)
			if err != nil {
				slog.Debug("Details fallback failed", "anime_id", id, "error", err)
				return
			}
			mu.Lock()
			details[id] = *media
			mu.Unlock()
		})
	}
	p.Wait()

	return details
}

// holdingLocked reports whether a's next episode aired within the release hold
func (r *Reconciler) holdingLocked(a anime.TrackedAnime, now int64) bool {
	if r.releaseHold <= 0 || !a.Next.IsKnown() {
		return false
	}
	elapsed := now - a.Next.AiringAt
	return elapsed >= 0 && elapsed < r.releaseHold
}

// FixStaleAiringTimes advances next airing times that already passed to the
// first later episode of the known schedule. It returns how many were moved.
func (r *Reconciler) FixStaleAiringTimes(now int64) int {
	r.mu.Lock()
	fixed := r.fixStaleLocked(now)
	if fixed == 0 {
		r.mu.Unlock()
		return 0
	}
	r.unlockAndPublish(r.eventLocked(EventRefreshed, 0))
	return fixed
}

func (r *Reconciler) fixStaleLocked(now int64) int {
	fixed := 0
	for i, a := range r.anime {
		if a.IsFinished() || !a.Next.IsKnown() || a.Next.AiringAt >= now || len(a.FullAiringSchedule) == 0 {
			continue
		}
		if r.holdingLocked(a, now) {
			continue
		}
		node, ok := anime.NextAfter(a.FullAiringSchedule, now)
		if !ok {
			continue
		}

		a = a.Clone()
		a.Next = anime.Known(node.Episode, node.AiringAt)
		if a.Original != nil {
			a.Original.Next = anime.Known(node.Episode, node.AiringAt-a.UserTimeOffsetSeconds)
		}
		r.replaceLocked(i, a)
		fixed++
	}
	return fixed
}

type refillResult struct {
	id    int
	nodes []anime.AiringNode
}

// RefillCalendar refetches full schedules and regenerates calendar entries.
// With force every anime is refetched bypassing the cache and put on the
// calendar; otherwise only anime already on the calendar or without a
// schedule are considered.
func (r *Reconciler) RefillCalendar(ctx context.Context, force bool) (int, error) {
	r.mu.Lock()
	var ids []int
	for _, a := range r.anime {
		if force || r.inCalendarLocked(a.ID) || len(a.FullAiringSchedule) == 0 {
			ids = append(ids, a.ID)
		}
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}

	var (
		resultsMu sync.Mutex
		results   []refillResult
		errs      []error
	)

	p := pool.New().WithMaxGoroutines(r.concurrency)
	for _, id := range ids {
		p.Go(func() {
			nodes, err := r.source.GetFullSchedule(ctx, id, force)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("anime %d: %w", id, err))
				return
			}
			results = append(results, refillResult{id: id, nodes: nodes})
		})
	}
	p.Wait()

	r.mu.Lock()
	updated := 0
	for _, res := range results {
		i := r.indexLocked(res.id)
		if i < 0 {
			continue
		}
		a := withRemoteSchedule(r.anime[i].Clone(), res.nodes)
		r.replaceLocked(i, a)
		r.regenerateLocked(a)
		updated++
	}
	r.unlockAndPublish(r.eventLocked(EventCalendar, 0))

	if len(errs) > 0 {
		slog.Warn("Calendar refill incomplete", "requested", len(ids), "updated", updated, "failed", len(errs))
		return updated, errors.Join(errs...)
	}

	slog.Info("Calendar refilled", "updated", updated, "force", force)
	return updated, nil
}

// ClearAll drops the whole watch list and calendar
func (r *Reconciler) ClearAll() {
	r.mu.Lock()
	r.anime = nil
	r.calendar = nil
	r.unlockAndPublish(r.eventLocked(EventCleared, 0))
}

// withRemoteSchedule installs a freshly fetched schedule. Adjusted anime keep
// their offset: the fetched schedule becomes the new original.
func withRemoteSchedule(a anime.TrackedAnime, nodes []anime.AiringNode) anime.TrackedAnime {
	if a.Original != nil {
		a.Original.Schedule = slices.Clone(nodes)
		a.FullAiringSchedule = anime.ShiftSchedule(nodes, a.UserTimeOffsetSeconds)
		return a
	}
	a.FullAiringSchedule = slices.Clone(nodes)
	return a
}

func applyMetadata(a *anime.TrackedAnime, m anilist.Media) {
	if m.ID != a.ID {
		return
	}
	fresh := m.ToTracked()
	if fresh.Title != (anime.Title{}) {
		a.Title = fresh.Title
	}
	if fresh.CoverImage != "" {
		a.CoverImage = fresh.CoverImage
	}
	if len(fresh.Genres) > 0 {
		a.Genres = slices.Clone(fresh.Genres)
	}
	if fresh.SiteURL != "" {
		if a.SiteURLOverridden {
			a.OriginalSiteURL = fresh.SiteURL
		} else {
			a.SiteURL = fresh.SiteURL
		}
	}
	if fresh.EpisodeCount > 0 {
		a.EpisodeCount = fresh.EpisodeCount
	}
	if m.Status != "" {
		a.Status = fresh.Status
	}
}

func (r *Reconciler) indexLocked(id int) int {
	return slices.IndexFunc(r.anime, func(a anime.TrackedAnime) bool { return a.ID == id })
}

// replaceLocked swaps in a new list so snapshots handed out earlier never change
func (r *Reconciler) replaceLocked(i int, a anime.TrackedAnime) {
	list := slices.Clone(r.anime)
	list[i] = a
	r.anime = list
}

func (r *Reconciler) inCalendarLocked(id int) bool {
	return slices.ContainsFunc(r.calendar, func(e anime.CalendarEntry) bool { return e.ID == id })
}

func (r *Reconciler) removeEntriesLocked(id int) {
	r.calendar = slices.DeleteFunc(slices.Clone(r.calendar), func(e anime.CalendarEntry) bool { return e.ID == id })
}

func (r *Reconciler) regenerateLocked(a anime.TrackedAnime) {
	r.removeEntriesLocked(a.ID)
	r.calendar = append(r.calendar, calendar.Entries(a)...)
}

func (r *Reconciler) snapshotLocked() Snapshot {
	s := Snapshot{
		Anime:    make([]anime.TrackedAnime, len(r.anime)),
		Calendar: slices.Clone(r.calendar),
	}
	for i, a := range r.anime {
		s.Anime[i] = a.Clone()
	}
	if s.Calendar == nil {
		s.Calendar = []anime.CalendarEntry{}
	}
	return s
}

// eventLocked builds the event for a committed mutation and records the id
// set when it differs from the one last handed out for refresh.
func (r *Reconciler) eventLocked(kind EventKind, id int) Event {
	ids := make([]int, len(r.anime))
	for i, a := range r.anime {
		ids[i] = a.ID
	}
	slices.Sort(ids)

	refresh := !slices.Equal(ids, r.lastIDs)
	if refresh {
		r.lastIDs = ids
	}

	return Event{
		Kind:          kind,
		AnimeID:       id,
		Snapshot:      r.snapshotLocked(),
		RefreshNeeded: refresh,
	}
}

// unlockAndPublish releases the state lock and delivers ev to every listener
// once all earlier events have been delivered. Must be called with r.mu held.
func (r *Reconciler) unlockAndPublish(ev Event) {
	seq := r.nextSeq
	r.nextSeq++
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emitMu.Lock()
	for r.delivered != seq {
		r.emitCond.Wait()
	}
	r.emitMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}

	r.emitMu.Lock()
	r.delivered++
	r.emitCond.Broadcast()
	r.emitMu.Unlock()
}

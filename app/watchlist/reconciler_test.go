package watchlist

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/anitrack/app/anilist"
	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/schedule"
	"github.com/lysyi3m/anitrack/app/timeshift"
)

const testNow = int64(1_700_000_000)

type MockSource struct {
	mu            sync.Mutex
	media         map[string]*anilist.Media
	schedules     map[int][]anime.AiringNode
	next          map[int]schedule.NextAiring
	details       map[int]*anilist.Media
	scheduleErr   error
	nextErr       error
	scheduleCalls int
	forcedCalls   int
	requestedIDs  []int
	detailCalls   []int
}

func NewMockSource() *MockSource {
	return &MockSource{
		media:     make(map[string]*anilist.Media),
		schedules: make(map[int][]anime.AiringNode),
		next:      make(map[int]schedule.NextAiring),
		details:   make(map[int]*anilist.Media),
	}
}

func (m *MockSource) Search(ctx context.Context, name string) (*anilist.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if media, ok := m.media[name]; ok {
		copied := *media
		return &copied, nil
	}
	return nil, schedule.ErrNotFound
}

func (m *MockSource) GetFullSchedule(ctx context.Context, id int, forceRefresh bool) ([]anime.AiringNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleCalls++
	if forceRefresh {
		m.forcedCalls++
	}
	if m.scheduleErr != nil {
		return []anime.AiringNode{}, m.scheduleErr
	}
	nodes := append([]anime.AiringNode{}, m.schedules[id]...)
	return nodes, nil
}

func (m *MockSource) GetSchedulesForIDs(ctx context.Context, ids []int) (map[int]schedule.NextAiring, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestedIDs = append([]int{}, ids...)
	if m.nextErr != nil {
		return nil, m.nextErr
	}
	result := make(map[int]schedule.NextAiring)
	for _, id := range ids {
		if n, ok := m.next[id]; ok {
			result[id] = n
		}
	}
	return result, nil
}

func (m *MockSource) GetDetails(ctx context.Context, id int) (*anilist.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailCalls = append(m.detailCalls, id)
	if media, ok := m.details[id]; ok {
		copied := *media
		return &copied, nil
	}
	return nil, schedule.ErrNotFound
}

func weekly(first int64, count int) []anime.AiringNode {
	nodes := make([]anime.AiringNode, count)
	for i := range nodes {
		nodes[i] = anime.AiringNode{Episode: i + 1, AiringAt: first + int64(i)*604800}
	}
	return nodes
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listener(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func setupReconciler() (*Reconciler, *MockSource, *eventRecorder) {
	source := NewMockSource()
	source.media["Frieren"] = &anilist.Media{ID: 1, Title: anilist.Title{Romaji: "Sousou no Frieren"}, Status: "RELEASING"}
	source.media["Bocchi"] = &anilist.Media{ID: 2, Title: anilist.Title{Romaji: "Bocchi the Rock!"}, Status: "RELEASING"}
	source.schedules[1] = weekly(testNow-604800, 4)
	source.schedules[2] = weekly(testNow+3600, 2)

	r := NewReconciler(source, 2).WithClock(func() time.Time { return time.Unix(testNow, 0) })
	rec := &eventRecorder{}
	r.Subscribe(rec.listener)
	return r, source, rec
}

func TestAdd(t *testing.T) {
	r, _, rec := setupReconciler()

	a, err := r.Add(context.Background(), "Frieren")
	if err != nil {
		t.Fatal(err)
	}

	if a.Next.State != anime.AiringPending {
		t.Errorf("Expected pending next airing, got %s", a.Next.State)
	}
	if len(a.FullAiringSchedule) != 4 {
		t.Errorf("Expected 4 schedule nodes, got %d", len(a.FullAiringSchedule))
	}
	if a.AddedAt != testNow {
		t.Errorf("Expected addedAt %d, got %d", testNow, a.AddedAt)
	}

	snap := r.Snapshot()
	if len(snap.Calendar) != 4 {
		t.Errorf("Expected 4 calendar entries, got %d", len(snap.Calendar))
	}

	ev := rec.last()
	if ev.Kind != EventAdded || ev.AnimeID != 1 || !ev.RefreshNeeded {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestAddDuplicate(t *testing.T) {
	r, _, _ := setupReconciler()
	ctx := context.Background()

	if _, err := r.Add(ctx, "Frieren"); err != nil {
		t.Fatal(err)
	}
	before := r.Snapshot()

	if _, err := r.Add(ctx, "Frieren"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if !reflect.DeepEqual(before, r.Snapshot()) {
		t.Error("Expected state to be unchanged after duplicate add")
	}
}

func TestAddNotFound(t *testing.T) {
	r, _, rec := setupReconciler()

	if _, err := r.Add(context.Background(), "Nothing"); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no events, got %d", len(rec.events))
	}
}

func TestAddWithoutScheduleStillTracks(t *testing.T) {
	r, source, _ := setupReconciler()
	source.scheduleErr = schedule.ErrRemoteUnavailable

	a, err := r.Add(context.Background(), "Frieren")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.FullAiringSchedule) != 0 {
		t.Errorf("Expected empty schedule, got %v", a.FullAiringSchedule)
	}
	if len(r.Snapshot().Calendar) != 0 {
		t.Error("Expected no calendar entries without a schedule")
	}
}

func TestConcurrentAddKeepsIDsUnique(t *testing.T) {
	r, _, _ := setupReconciler()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Add(context.Background(), "Bocchi")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrDuplicate):
			t.Errorf("Unexpected error %v", err)
		}
	}

	if succeeded != 1 {
		t.Errorf("Expected exactly one successful add, got %d", succeeded)
	}
	if n := len(r.Snapshot().Anime); n != 1 {
		t.Errorf("Expected one tracked anime, got %d", n)
	}
}

func TestRemove(t *testing.T) {
	r, _, rec := setupReconciler()
	ctx := context.Background()

	r.Add(ctx, "Frieren")
	r.Add(ctx, "Bocchi")

	if err := r.Remove(1); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if len(snap.Anime) != 1 || snap.Anime[0].ID != 2 {
		t.Errorf("Unexpected anime after remove: %+v", snap.Anime)
	}
	for _, e := range snap.Calendar {
		if e.ID == 1 {
			t.Error("Expected calendar entries of removed anime to be gone")
		}
	}
	if !rec.last().RefreshNeeded {
		t.Error("Expected removal to request a refresh")
	}

	if err := r.Remove(1); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Expected ErrNotTracked, got %v", err)
	}
}

func TestToggleFavoriteRegeneratesEntries(t *testing.T) {
	r, _, rec := setupReconciler()
	r.Add(context.Background(), "Frieren")

	a, err := r.ToggleFavorite(1)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Favorited {
		t.Error("Expected anime to be favorited")
	}

	for _, e := range r.Snapshot().Calendar {
		if !e.Favorited {
			t.Errorf("Expected entry %+v to be favorited", e)
		}
	}
	if rec.last().RefreshNeeded {
		t.Error("Expected favorite toggle not to request a refresh")
	}

	if _, err := r.ToggleFavorite(99); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Expected ErrNotTracked, got %v", err)
	}
}

func TestCalendarMembership(t *testing.T) {
	r, source, _ := setupReconciler()
	ctx := context.Background()
	r.Add(ctx, "Frieren")

	if err := r.RemoveFromCalendar(1); err != nil {
		t.Fatal(err)
	}
	if r.Snapshot().InCalendar(1) {
		t.Error("Expected anime to be off the calendar")
	}

	if _, err := r.ToggleFavorite(1); err != nil {
		t.Fatal(err)
	}
	if r.Snapshot().InCalendar(1) {
		t.Error("Expected favorite toggle not to put the anime back on the calendar")
	}

	calls := source.scheduleCalls
	if err := r.AddToCalendar(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if source.scheduleCalls != calls {
		t.Error("Expected known schedule to be reused")
	}
	if !r.Snapshot().InCalendar(1) {
		t.Error("Expected anime to be back on the calendar")
	}

	if err := r.AddToCalendar(ctx, 42); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Expected ErrNotTracked, got %v", err)
	}
}

func TestSyncWithRemoteStore(t *testing.T) {
	r, _, rec := setupReconciler()
	r.Add(context.Background(), "Frieren")
	r.ToggleFavorite(1)
	if _, err := r.SetExactTime(1, testNow+604800+900); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SetSiteURL(1, "https://example.org/frieren"); err != nil {
		t.Fatal(err)
	}
	localBefore, _ := r.Get(1)
	if localBefore.Original == nil || localBefore.UserTimeOffsetSeconds != 900 {
		t.Fatalf("Expected adjusted local record, got %+v", localBefore)
	}

	remote := []anime.TrackedAnime{
		{ID: 1, Title: anime.Title{Romaji: "Remote Frieren"}, Favorited: false, SiteURL: "https://remote",
			Next: anime.Known(9, testNow+50), FullAiringSchedule: weekly(testNow, 1), EpisodeCount: 99},
		{ID: 5, Title: anime.Title{Romaji: "Five"}, Next: anime.Known(3, testNow+100)},
		{ID: 3, Title: anime.Title{Romaji: "Three"}},
		{ID: 5, Title: anime.Title{Romaji: "Five again"}},
	}

	merged := r.SyncWithRemoteStore(remote)

	var ids []int
	for _, a := range merged.Anime {
		ids = append(ids, a.ID)
	}
	if want := []int{1, 5, 3}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected ids %v, got %v", want, ids)
	}
	if !reflect.DeepEqual(merged.Anime[0], localBefore) {
		t.Errorf("Expected local record to win field for field, got %+v want %+v", merged.Anime[0], localBefore)
	}
	if merged.Anime[1].Title.Romaji != "Five" {
		t.Errorf("Expected first remote occurrence to win, got %q", merged.Anime[1].Title.Romaji)
	}
	if !merged.InCalendar(5) {
		t.Error("Expected remote anime with a known airing to be on the calendar")
	}
	if !rec.last().RefreshNeeded {
		t.Error("Expected new ids to request a refresh")
	}

	again := r.SyncWithRemoteStore(remote)
	if !reflect.DeepEqual(again.Anime, merged.Anime) {
		t.Error("Expected repeated sync to be a no-op")
	}
	if rec.last().RefreshNeeded {
		t.Error("Expected unchanged id set not to request a refresh")
	}
}

func TestRefreshSchedules(t *testing.T) {
	r, source, _ := setupReconciler()
	r.Load([]anime.TrackedAnime{
		{ID: 1, Status: anime.StatusReleasing, Next: anime.Pending(), UserTimeOffsetSeconds: 1800,
			Original: &anime.ScheduleSnapshot{Next: anime.Pending()}},
		{ID: 2, Status: anime.StatusReleasing, Next: anime.Known(4, 400)},
		{ID: 3, Status: anime.StatusFinished, Next: anime.Known(12, 100)},
	}, nil)

	source.next[1] = schedule.NextAiring{Episode: 5, AiringAt: testNow + 3600,
		Media: anilist.Media{ID: 1, Title: anilist.Title{English: "Frieren"}, Episodes: 28, Status: "RELEASING"}}
	source.next[3] = schedule.NextAiring{Episode: 13, AiringAt: testNow}

	if err := r.RefreshSchedules(context.Background()); err != nil {
		t.Fatal(err)
	}

	if want := []int{1, 2}; !reflect.DeepEqual(source.requestedIDs, want) {
		t.Errorf("Expected finished anime to be skipped, requested %v", source.requestedIDs)
	}

	one, _ := r.Get(1)
	if one.Next != anime.Known(5, testNow+3600+1800) {
		t.Errorf("Expected next shifted by user offset, got %+v", one.Next)
	}
	if one.Original.Next != anime.Known(5, testNow+3600) {
		t.Errorf("Expected original next to hold the catalog time, got %+v", one.Original.Next)
	}
	if one.Title.Display() != "Frieren" || one.EpisodeCount != 28 {
		t.Errorf("Expected metadata refresh, got %+v", one)
	}

	two, _ := r.Get(2)
	if two.Next != anime.Known(4, 400) {
		t.Errorf("Expected id without result to be unchanged, got %+v", two.Next)
	}

	three, _ := r.Get(3)
	if three.Next != anime.Known(12, 100) {
		t.Errorf("Expected finished anime to be unchanged, got %+v", three.Next)
	}
}

func TestRefreshSchedulesDetailsFallback(t *testing.T) {
	r, source, _ := setupReconciler()
	r.Load([]anime.TrackedAnime{
		{ID: 1, Status: anime.StatusReleasing, Next: anime.Known(12, testNow-86400), Title: anime.Title{Romaji: "Old"}},
		{ID: 2, Status: anime.StatusReleasing, Next: anime.Known(3, testNow+3600)},
	}, nil)

	source.next[2] = schedule.NextAiring{Episode: 3, AiringAt: testNow + 3600, Media: anilist.Media{ID: 2}}
	source.details[1] = &anilist.Media{ID: 1, Title: anilist.Title{Romaji: "Finale"}, Episodes: 12, Status: "FINISHED"}

	if err := r.RefreshSchedules(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(source.detailCalls, []int{1}) {
		t.Errorf("Expected details lookup only for anime without a next airing, got %v", source.detailCalls)
	}

	one, _ := r.Get(1)
	if !one.IsFinished() || one.Title.Romaji != "Finale" || one.EpisodeCount != 12 {
		t.Errorf("Expected metadata from details, got %+v", one)
	}
	if one.Next != anime.Known(12, testNow-86400) {
		t.Errorf("Expected next to be unchanged by details, got %+v", one.Next)
	}
}

func TestReleaseHoldKeepsJustAiredEpisode(t *testing.T) {
	r, source, _ := setupReconciler()
	r.WithReleaseHold(10 * time.Minute)
	sched := []anime.AiringNode{{Episode: 3, AiringAt: testNow - 300}, {Episode: 4, AiringAt: testNow + 604800 - 300}}

	r.Load([]anime.TrackedAnime{
		{ID: 1, Status: anime.StatusReleasing, Next: anime.Known(3, testNow-300), FullAiringSchedule: sched},
		{ID: 2, Status: anime.StatusReleasing, Next: anime.Known(7, testNow-1200), FullAiringSchedule: sched},
	}, nil)

	one, _ := r.Get(1)
	if one.Next != anime.Known(3, testNow-300) {
		t.Errorf("Expected just aired episode to be held on load, got %+v", one.Next)
	}
	two, _ := r.Get(2)
	if two.Next != anime.Known(4, testNow+604800-300) {
		t.Errorf("Expected episode past the hold to advance, got %+v", two.Next)
	}

	source.next[1] = schedule.NextAiring{Episode: 4, AiringAt: testNow + 604800 - 300, Media: anilist.Media{ID: 1}}
	if err := r.RefreshSchedules(context.Background()); err != nil {
		t.Fatal(err)
	}
	one, _ = r.Get(1)
	if one.Next != anime.Known(3, testNow-300) {
		t.Errorf("Expected refresh to keep the held episode, got %+v", one.Next)
	}

	r.WithClock(func() time.Time { return time.Unix(testNow+600, 0) })
	if err := r.RefreshSchedules(context.Background()); err != nil {
		t.Fatal(err)
	}
	one, _ = r.Get(1)
	if one.Next != anime.Known(4, testNow+604800-300) {
		t.Errorf("Expected refresh after the hold to advance, got %+v", one.Next)
	}
}

func TestSiteURLOverride(t *testing.T) {
	r, source, rec := setupReconciler()
	r.Load([]anime.TrackedAnime{{ID: 1, Status: anime.StatusReleasing, SiteURL: "https://anilist.co/anime/1"}}, nil)

	if _, err := r.SetSiteURL(1, "ftp://files"); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("Expected ErrInvalidLink, got %v", err)
	}
	if _, err := r.SetSiteURL(9, "https://example.org"); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Expected ErrNotTracked, got %v", err)
	}

	a, err := r.SetSiteURL(1, "  https://example.org/watch  ")
	if err != nil {
		t.Fatal(err)
	}
	if a.SiteURL != "https://example.org/watch" || a.OriginalSiteURL != "https://anilist.co/anime/1" {
		t.Errorf("Unexpected link state %+v", a)
	}
	if rec.last().Kind != EventLinked {
		t.Errorf("Expected linked event, got %s", rec.last().Kind)
	}

	a, _ = r.SetSiteURL(1, "https://example.org/other")
	if a.OriginalSiteURL != "https://anilist.co/anime/1" {
		t.Errorf("Expected first catalog link to be kept, got %q", a.OriginalSiteURL)
	}

	source.next[1] = schedule.NextAiring{Episode: 2, AiringAt: testNow + 60,
		Media: anilist.Media{ID: 1, SiteURL: "https://anilist.co/anime/1-new"}}
	if err := r.RefreshSchedules(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, _ = r.Get(1)
	if a.SiteURL != "https://example.org/other" {
		t.Errorf("Expected refresh not to replace the user link, got %q", a.SiteURL)
	}

	a, err = r.ResetSiteURL(1)
	if err != nil {
		t.Fatal(err)
	}
	if a.SiteURL != "https://anilist.co/anime/1-new" || a.SiteURLOverridden || a.OriginalSiteURL != "" {
		t.Errorf("Expected latest catalog link after reset, got %+v", a)
	}

	again, _ := r.ResetSiteURL(1)
	if !reflect.DeepEqual(again, a) {
		t.Error("Expected reset to be idempotent")
	}
}

func TestRefreshSchedulesFailureLeavesState(t *testing.T) {
	r, source, rec := setupReconciler()
	r.Load([]anime.TrackedAnime{{ID: 1, Next: anime.Pending()}}, nil)
	before := r.Snapshot()
	events := len(rec.events)

	source.nextErr = schedule.ErrRemoteUnavailable
	if err := r.RefreshSchedules(context.Background()); !errors.Is(err, schedule.ErrRemoteUnavailable) {
		t.Errorf("Expected ErrRemoteUnavailable, got %v", err)
	}
	if !reflect.DeepEqual(before, r.Snapshot()) {
		t.Error("Expected state to be unchanged on refresh failure")
	}
	if len(rec.events) != events {
		t.Error("Expected no event on refresh failure")
	}
}

func TestFixStaleAiringTimes(t *testing.T) {
	r, _, _ := setupReconciler()
	sched := weekly(testNow-2*604800, 4)

	r.mu.Lock()
	r.anime = []anime.TrackedAnime{
		{ID: 1, Status: anime.StatusReleasing, Next: anime.Known(1, sched[0].AiringAt), FullAiringSchedule: sched},
		{ID: 2, Status: anime.StatusFinished, Next: anime.Known(1, sched[0].AiringAt), FullAiringSchedule: sched},
		{ID: 3, Status: anime.StatusReleasing, Next: anime.Known(1, sched[0].AiringAt)},
		{ID: 4, Status: anime.StatusReleasing, Next: anime.Known(1, sched[0].AiringAt), FullAiringSchedule: sched[:2]},
	}
	r.mu.Unlock()

	if fixed := r.FixStaleAiringTimes(testNow); fixed != 1 {
		t.Errorf("Expected 1 fixed anime, got %d", fixed)
	}

	one, _ := r.Get(1)
	if one.Next != anime.Known(4, sched[3].AiringAt) {
		t.Errorf("Expected next to advance to episode 4, got %+v", one.Next)
	}
	for _, id := range []int{2, 3, 4} {
		a, _ := r.Get(id)
		if a.Next != anime.Known(1, sched[0].AiringAt) {
			t.Errorf("Expected anime %d to be untouched, got %+v", id, a.Next)
		}
	}
}

func TestLoadFixesStaleTimesAndDedupes(t *testing.T) {
	r, _, rec := setupReconciler()
	sched := weekly(testNow-604800+60, 3)

	r.Load([]anime.TrackedAnime{
		{ID: 1, Status: anime.StatusReleasing, Next: anime.Known(1, sched[0].AiringAt), FullAiringSchedule: sched},
		{ID: 1, Title: anime.Title{Romaji: "dup"}},
	}, []anime.CalendarEntry{{ID: 1, Episode: 1}, {ID: 9, Episode: 1}})

	snap := r.Snapshot()
	if len(snap.Anime) != 1 {
		t.Errorf("Expected duplicates to collapse, got %d", len(snap.Anime))
	}
	if snap.Anime[0].Next.Episode != 2 {
		t.Errorf("Expected stale next to advance on load, got %+v", snap.Anime[0].Next)
	}
	if len(snap.Calendar) != 1 {
		t.Errorf("Expected entries of untracked ids to be dropped, got %+v", snap.Calendar)
	}
	if ev := rec.last(); ev.Kind != EventLoaded || !ev.RefreshNeeded {
		t.Errorf("Unexpected load event %+v", ev)
	}
}

func TestTimeShiftThroughReconciler(t *testing.T) {
	r, _, _ := setupReconciler()
	r.Add(context.Background(), "Bocchi")

	a, err := r.SetExactTime(2, testNow+7200)
	if err != nil {
		t.Fatal(err)
	}
	if a.UserTimeOffsetSeconds != 3600 {
		t.Errorf("Expected offset 3600, got %d", a.UserTimeOffsetSeconds)
	}
	if !reflect.DeepEqual(a.FullAiringSchedule, anime.ShiftSchedule(a.Original.Schedule, a.UserTimeOffsetSeconds)) {
		t.Error("Expected schedule to equal original shifted by offset")
	}

	for _, e := range r.Snapshot().Calendar {
		if e.Episode == 1 && e.AiringAt != testNow+7200 {
			t.Errorf("Expected calendar entry to follow the shift, got %+v", e)
		}
	}

	if _, err := r.AdjustByOffset(2, 1800); err != nil {
		t.Fatal(err)
	}

	reset, err := r.ResetToOriginal(2)
	if err != nil {
		t.Fatal(err)
	}
	if reset.UserTimeOffsetSeconds != 0 || reset.Original != nil {
		t.Errorf("Expected reset anime, got %+v", reset)
	}
	for _, e := range r.Snapshot().Calendar {
		if e.Episode == 1 && e.AiringAt != testNow+3600 {
			t.Errorf("Expected calendar entry back at catalog time, got %+v", e)
		}
	}

	if _, err := r.SetExactTime(2, 0); !errors.Is(err, timeshift.ErrInvalidTime) {
		t.Errorf("Expected ErrInvalidTime, got %v", err)
	}
}

func TestRefillCalendarKeepsOffset(t *testing.T) {
	r, source, _ := setupReconciler()
	ctx := context.Background()
	r.Add(ctx, "Bocchi")
	r.Add(ctx, "Frieren")
	r.RemoveFromCalendar(1)

	if _, err := r.SetExactTime(2, testNow+3600+600); err != nil {
		t.Fatal(err)
	}

	source.schedules[2] = weekly(testNow+7200, 3)

	updated, err := r.RefillCalendar(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Errorf("Expected only the calendar anime to be refilled, got %d", updated)
	}
	if r.Snapshot().InCalendar(1) {
		t.Error("Expected non-forced refill to respect calendar removal")
	}

	a, _ := r.Get(2)
	if !reflect.DeepEqual(a.Original.Schedule, source.schedules[2]) {
		t.Errorf("Expected original schedule to be replaced, got %+v", a.Original.Schedule)
	}
	if !reflect.DeepEqual(a.FullAiringSchedule, anime.ShiftSchedule(source.schedules[2], 600)) {
		t.Errorf("Expected offset to be re-applied, got %+v", a.FullAiringSchedule)
	}

	updated, err = r.RefillCalendar(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 2 || !r.Snapshot().InCalendar(1) {
		t.Errorf("Expected forced refill to cover every anime, got %d", updated)
	}
	if source.forcedCalls != 2 {
		t.Errorf("Expected forced fetches to bypass the cache, got %d", source.forcedCalls)
	}
}

func TestRefillCalendarReportsFailures(t *testing.T) {
	r, source, _ := setupReconciler()
	r.Add(context.Background(), "Frieren")
	before := r.Snapshot()

	source.scheduleErr = schedule.ErrRemoteUnavailable
	updated, err := r.RefillCalendar(context.Background(), true)
	if !errors.Is(err, schedule.ErrRemoteUnavailable) {
		t.Errorf("Expected ErrRemoteUnavailable, got %v", err)
	}
	if updated != 0 {
		t.Errorf("Expected no updates, got %d", updated)
	}
	if !reflect.DeepEqual(before.Calendar, r.Snapshot().Calendar) {
		t.Error("Expected calendar to be unchanged after failed refill")
	}
}

func TestClearAll(t *testing.T) {
	r, _, rec := setupReconciler()
	r.Add(context.Background(), "Frieren")

	r.ClearAll()

	snap := r.Snapshot()
	if len(snap.Anime) != 0 || len(snap.Calendar) != 0 {
		t.Errorf("Expected empty state, got %+v", snap)
	}
	if rec.last().Kind != EventCleared {
		t.Errorf("Expected cleared event, got %s", rec.last().Kind)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	r, _, _ := setupReconciler()
	r.Add(context.Background(), "Frieren")

	snap := r.Snapshot()
	snap.Anime[0].FullAiringSchedule[0].AiringAt = 0
	snap.Calendar[0].Title = "changed"

	fresh := r.Snapshot()
	if fresh.Anime[0].FullAiringSchedule[0].AiringAt == 0 || fresh.Calendar[0].Title == "changed" {
		t.Error("Expected snapshot modifications not to leak into the reconciler")
	}
}

func TestListenersRunInOrderAndMayRead(t *testing.T) {
	r, _, _ := setupReconciler()

	var mu sync.Mutex
	var sizes []int
	r.Subscribe(func(ev Event) {
		// reading back must not deadlock
		current := r.Snapshot()
		mu.Lock()
		sizes = append(sizes, len(ev.Snapshot.Anime))
		mu.Unlock()
		_ = current
	})

	ctx := context.Background()
	r.Add(ctx, "Frieren")
	r.Add(ctx, "Bocchi")
	r.Remove(1)
	r.ToggleFavorite(2)

	if want := []int{1, 2, 1, 1}; !reflect.DeepEqual(sizes, want) {
		t.Errorf("Expected snapshot sizes %v, got %v", want, sizes)
	}
}

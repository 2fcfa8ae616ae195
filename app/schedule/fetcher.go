package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/anitrack/app/anilist"
	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/cache"
)

var (
	ErrNotFound          = errors.New("no matching anime")
	ErrRemoteUnavailable = errors.New("catalog unavailable")
)

// Catalog is the subset of the AniList client the fetcher needs
type Catalog interface {
	Search(ctx context.Context, name string) (*anilist.Media, error)
	SearchMany(ctx context.Context, name string, limit int) ([]anilist.Media, error)
	Details(ctx context.Context, id int) (*anilist.Media, error)
	FullSchedule(ctx context.Context, id int) ([]anilist.ScheduleNode, error)
	NextAiring(ctx context.Context, ids []int) ([]anilist.AiringSchedule, error)
	Upcoming(ctx context.Context, limit int) ([]anilist.AiringSchedule, error)
}

// NextAiring is the earliest not yet aired episode of one anime plus its current metadata
type NextAiring struct {
	Episode  int
	AiringAt int64
	Media    anilist.Media
}

type upcomingPayload struct {
	Limit int                      `json:"limit"`
	Items []anilist.AiringSchedule `json:"items"`
}

// Fetcher answers schedule questions from the cache first and the catalog second
type Fetcher struct {
	catalog Catalog
	cache   *cache.Cache
}

func NewFetcher(catalog Catalog, c *cache.Cache) *Fetcher {
	return &Fetcher{catalog: catalog, cache: c}
}

// GetFullSchedule returns the ascending airing schedule of id. A catalog failure yields an
// empty schedule together with ErrRemoteUnavailable; a genuinely empty schedule has a nil error.
func (f *Fetcher) GetFullSchedule(ctx context.Context, id int, forceRefresh bool) ([]anime.AiringNode, error) {
	key := cache.ScheduleKey(id)

	if !forceRefresh {
		var cached []anime.AiringNode
		if f.cache.GetInto(key, &cached) {
			anime.SortSchedule(cached)
			return cached, nil
		}
	}

	remote, err := f.catalog.FullSchedule(ctx, id)
	if errors.Is(err, anilist.ErrNotFound) {
		remote, err = nil, nil
	}
	if err != nil {
		slog.Warn("Failed to fetch full schedule", "anime_id", id, "error", err)
		return []anime.AiringNode{}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	nodes := make([]anime.AiringNode, 0, len(remote))
	for _, n := range remote {
		nodes = append(nodes, anime.AiringNode{Episode: n.Episode, AiringAt: n.AiringAt})
	}
	anime.SortSchedule(nodes)

	if err := f.cache.Set(key, nodes); err != nil {
		slog.Warn("Failed to cache full schedule", "anime_id", id, "error", err)
	}

	return nodes, nil
}

// GetSchedulesForIDs looks up the next airing episode of every id in one round trip.
// Ids the catalog has nothing for are absent from the result.
func (f *Fetcher) GetSchedulesForIDs(ctx context.Context, ids []int) (map[int]NextAiring, error) {
	result := make(map[int]NextAiring)
	if len(ids) == 0 {
		return result, nil
	}

	schedules, err := f.catalog.NextAiring(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	for _, s := range schedules {
		current, seen := result[s.Media.ID]
		if seen && current.AiringAt <= s.AiringAt {
			continue
		}
		result[s.Media.ID] = NextAiring{Episode: s.Episode, AiringAt: s.AiringAt, Media: s.Media}
	}

	return result, nil
}

// GetDetails returns descriptive metadata, cached per id
func (f *Fetcher) GetDetails(ctx context.Context, id int) (*anilist.Media, error) {
	key := cache.DetailsKey(id)

	var cached anilist.Media
	if f.cache.GetInto(key, &cached) {
		return &cached, nil
	}

	media, err := f.catalog.Details(ctx, id)
	if errors.Is(err, anilist.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	if err := f.cache.Set(key, media); err != nil {
		slog.Warn("Failed to cache anime details", "anime_id", id, "error", err)
	}

	return media, nil
}

// GetUpcoming returns the soonest airing episodes across the catalog
func (f *Fetcher) GetUpcoming(ctx context.Context, limit int) ([]anilist.AiringSchedule, error) {
	if limit <= 0 {
		limit = 10
	}

	var cached upcomingPayload
	if f.cache.GetInto(cache.UpcomingKey(), &cached) && cached.Limit >= limit {
		return truncate(cached.Items, limit), nil
	}

	items, err := f.catalog.Upcoming(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	if err := f.cache.Set(cache.UpcomingKey(), upcomingPayload{Limit: limit, Items: items}); err != nil {
		slog.Warn("Failed to cache upcoming feed", "error", err)
	}

	return items, nil
}

// Search returns the best catalog match for a user typed name
func (f *Fetcher) Search(ctx context.Context, name string) (*anilist.Media, error) {
	query := NormalizeName(name)
	if query == "" {
		return nil, ErrNotFound
	}

	media, err := f.catalog.Search(ctx, query)
	if errors.Is(err, anilist.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	return media, nil
}

// SearchSuggestions returns up to limit matches for a partially typed name
func (f *Fetcher) SearchSuggestions(ctx context.Context, name string, limit int) ([]anilist.Media, error) {
	query := NormalizeName(name)
	if query == "" {
		return []anilist.Media{}, nil
	}
	if limit <= 0 {
		limit = 6
	}

	results, err := f.catalog.SearchMany(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// NormalizeName folds full width and compatibility characters and collapses whitespace
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}

func truncate(items []anilist.AiringSchedule, limit int) []anilist.AiringSchedule {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

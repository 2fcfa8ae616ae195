package api

import (
	"context"
	"time"

	"github.com/lysyi3m/anitrack/app/anilist"
	"github.com/lysyi3m/anitrack/app/anime"
	"github.com/lysyi3m/anitrack/app/calendar"
	"github.com/lysyi3m/anitrack/app/database"
	"github.com/lysyi3m/anitrack/app/tasks"
	"github.com/lysyi3m/anitrack/app/watchlist"
)

// Tracker is the watch list surface exposed over HTTP
type Tracker interface {
	tasks.ScheduleRefresher

	Snapshot() watchlist.Snapshot
	Get(id int) (anime.TrackedAnime, bool)
	Add(ctx context.Context, name string) (anime.TrackedAnime, error)
	Remove(id int) error
	ToggleFavorite(id int) (anime.TrackedAnime, error)
	SetExactTime(id int, ts int64) (anime.TrackedAnime, error)
	AdjustByOffset(id int, delta int64) (anime.TrackedAnime, error)
	ResetToOriginal(id int) (anime.TrackedAnime, error)
	SetSiteURL(id int, link string) (anime.TrackedAnime, error)
	ResetSiteURL(id int) (anime.TrackedAnime, error)
	AddToCalendar(ctx context.Context, id int) error
	RemoveFromCalendar(id int) error
	ClearAll()
}

var _ Tracker = (*watchlist.Reconciler)(nil)

// CatalogSource answers catalog questions that do not touch the watch list
type CatalogSource interface {
	GetUpcoming(ctx context.Context, limit int) ([]anilist.AiringSchedule, error)
	SearchSuggestions(ctx context.Context, name string, limit int) ([]anilist.Media, error)
}

type CacheStore interface {
	Clear(prefix string) (int, error)
	Entries(prefix string) ([]database.Entry, error)
}

type AccountSyncer interface {
	tasks.AccountSyncer
	Enabled() bool
}

type ReleaseLog interface {
	Clear() error
}

type GeneratorInterface interface {
	Run(days []calendar.Day, meta calendar.Meta) (string, error)
}

var _ GeneratorInterface = (*calendar.Generator)(nil)

// Options carries the presentation settings of the HTTP layer
type Options struct {
	Location *time.Location
	BaseUrl  string
	Port     string
	Version  string
}

type Handler struct {
	tracker   Tracker
	catalog   CatalogSource
	cache     CacheStore
	syncer    AccountSyncer
	releases  ReleaseLog
	scheduler tasks.TaskSchedulerInterface
	generator GeneratorInterface
	opts      Options
	now       func() time.Time
}

type addAnimeRequest struct {
	Name string `json:"name" binding:"required"`
}

type releaseTimeRequest struct {
	Time string `json:"time" binding:"required"` // datetime-local, RFC3339 or unix seconds
}

type siteLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

type offsetRequest struct {
	Seconds int64 `json:"seconds"`
}

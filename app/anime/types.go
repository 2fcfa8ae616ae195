package anime

import "slices"

type Status string

const (
	StatusReleasing      Status = "RELEASING"
	StatusFinished       Status = "FINISHED"
	StatusNotYetReleased Status = "NOT_YET_RELEASED"
	StatusCancelled      Status = "CANCELLED"
	StatusHiatus         Status = "HIATUS"
	StatusUnknown        Status = "UNKNOWN"
)

// ParseStatus maps a catalog status string onto a Status, UNKNOWN for anything unrecognized.
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusReleasing, StatusFinished, StatusNotYetReleased, StatusCancelled, StatusHiatus:
		return st
	default:
		return StatusUnknown
	}
}

type Title struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

// Display returns the preferred human readable title.
func (t Title) Display() string {
	switch {
	case t.English != "":
		return t.English
	case t.Romaji != "":
		return t.Romaji
	case t.Native != "":
		return t.Native
	default:
		return "Unknown Anime"
	}
}

type AiringNode struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airingAt"` // unix seconds
}

// ScheduleSnapshot is the pre-adjustment state captured on the first manual time change.
type ScheduleSnapshot struct {
	Next     Airing       `json:"next"`
	Schedule []AiringNode `json:"fullAiringSchedule"`
}

// TrackedAnime is one entry of the watching list.
type TrackedAnime struct {
	ID                    int               `json:"id"`
	Title                 Title             `json:"title"`
	CoverImage            string            `json:"coverImage,omitempty"`
	Genres                []string          `json:"genres,omitempty"`
	SiteURL               string            `json:"siteUrl,omitempty"`
	OriginalSiteURL       string            `json:"originalSiteUrl,omitempty"` // catalog link while overridden
	SiteURLOverridden     bool              `json:"siteUrlOverridden,omitempty"`
	EpisodeCount          int               `json:"episodes,omitempty"` // 0 when unknown
	Status                Status            `json:"status,omitempty"`
	Next                  Airing            `json:"next"`
	FullAiringSchedule    []AiringNode      `json:"fullAiringSchedule,omitempty"`
	Original              *ScheduleSnapshot `json:"original,omitempty"`
	UserTimeOffsetSeconds int64             `json:"userTimeOffsetSeconds,omitempty"`
	Favorited             bool              `json:"favorited"`
	AddedAt               int64             `json:"addedAt,omitempty"`
}

func (a TrackedAnime) IsFinished() bool {
	return a.Status == StatusFinished
}

// Clone returns a deep copy so snapshots never share slices with the live list.
func (a TrackedAnime) Clone() TrackedAnime {
	c := a
	c.Genres = slices.Clone(a.Genres)
	c.FullAiringSchedule = slices.Clone(a.FullAiringSchedule)
	if a.Original != nil {
		c.Original = &ScheduleSnapshot{
			Next:     a.Original.Next,
			Schedule: slices.Clone(a.Original.Schedule),
		}
	}
	return c
}

// CalendarEntry is one projected (anime, episode) pair.
type CalendarEntry struct {
	ID         int    `json:"id"`
	Episode    int    `json:"episode"`
	AiringAt   int64  `json:"airingAt"`
	Title      string `json:"title"`
	CoverImage string `json:"coverImage,omitempty"`
	Favorited  bool   `json:"favorited"`
}

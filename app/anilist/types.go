package anilist

import "github.com/lysyi3m/anitrack/app/anime"

type Title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

type CoverImage struct {
	ExtraLarge string `json:"extraLarge"`
}

type ScheduleNode struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airingAt"`
}

type Media struct {
	ID         int        `json:"id"`
	Title      Title      `json:"title"`
	CoverImage CoverImage `json:"coverImage"`
	Genres     []string   `json:"genres"`
	SiteURL    string     `json:"siteUrl"`
	Episodes   int        `json:"episodes"`
	Status     string     `json:"status"`
}

// AiringSchedule is one upcoming broadcast with its media
type AiringSchedule struct {
	AiringAt int64 `json:"airingAt"`
	Episode  int   `json:"episode"`
	Media    Media `json:"media"`
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ToTracked converts catalog media into a fresh watch list entry
func (m Media) ToTracked() anime.TrackedAnime {
	return anime.TrackedAnime{
		ID: m.ID,
		Title: anime.Title{
			Romaji:  m.Title.Romaji,
			English: m.Title.English,
			Native:  m.Title.Native,
		},
		CoverImage:   m.CoverImage.ExtraLarge,
		Genres:       m.Genres,
		SiteURL:      m.SiteURL,
		EpisodeCount: m.Episodes,
		Status:       anime.ParseStatus(m.Status),
		Next:         anime.Unknown(),
	}
}

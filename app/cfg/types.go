package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath          string
	CachePolicyFile string

	// Catalog
	AniListURL        string
	RequestsPerMinute int
	FetchConcurrency  int

	// Notifications
	NotifyURL         string
	NotifyChannelID   string
	NotifyInterval    time.Duration
	NotifyGraceWindow time.Duration

	// Background work
	WorkerCount         int
	RefreshInterval     time.Duration
	AccountSyncInterval time.Duration
	UserID              string

	// HTTP
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Location  *time.Location
	Debug     bool
	Version   string
}

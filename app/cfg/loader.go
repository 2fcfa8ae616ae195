package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath          string `long:"db-path" env:"DB_PATH" default:"./data/anitrack.db" description:"Path of the sqlite database file"`
	CachePolicyFile string `long:"cache-policy" env:"CACHE_POLICY_FILE" description:"YAML file overriding cache TTLs (optional)"`

	// Catalog
	AniListURL        string `long:"anilist-url" env:"ANILIST_URL" default:"https://graphql.anilist.co" description:"AniList GraphQL endpoint"`
	RequestsPerMinute int    `long:"requests-per-minute" env:"REQUESTS_PER_MINUTE" default:"90" description:"Catalog request budget per minute (0 disables limiting)"`
	FetchConcurrency  int    `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Parallel schedule fetches during a calendar refill"`

	// Notifications
	NotifyURL         string `long:"notify-url" env:"NOTIFY_URL" description:"Bot endpoint receiving release notifications (log only when empty)"`
	NotifyChannelID   string `long:"notify-channel" env:"NOTIFY_CHANNEL_ID" description:"Channel id sent along with notifications"`
	NotifyInterval    int    `long:"notify-interval" env:"NOTIFY_INTERVAL" default:"60" description:"Release poll interval in seconds"`
	NotifyGraceWindow int    `long:"notify-grace" env:"NOTIFY_GRACE_WINDOW" default:"600" description:"Seconds after airing during which a release is still announced"`

	// Background work
	WorkerCount         int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers"`
	RefreshInterval     int    `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"3600" description:"Schedule refresh interval in seconds"`
	AccountSyncInterval int    `long:"sync-interval" env:"SYNC_INTERVAL" default:"900" description:"Account sync interval in seconds (0 disables periodic sync)"`
	UserID              string `long:"user-id" env:"USER_ID" description:"Account whose remote watching list is synced (optional)"`

	// HTTP
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://anime.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"AniTrack/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone used for calendar days (e.g., UTC, Asia/Tokyo)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses the process arguments and environment. It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validate(&raw); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		CachePolicyFile:     raw.CachePolicyFile,
		AniListURL:          raw.AniListURL,
		RequestsPerMinute:   raw.RequestsPerMinute,
		FetchConcurrency:    raw.FetchConcurrency,
		NotifyURL:           raw.NotifyURL,
		NotifyChannelID:     raw.NotifyChannelID,
		NotifyInterval:      seconds(raw.NotifyInterval),
		NotifyGraceWindow:   seconds(raw.NotifyGraceWindow),
		WorkerCount:         raw.WorkerCount,
		RefreshInterval:     seconds(raw.RefreshInterval),
		AccountSyncInterval: seconds(raw.AccountSyncInterval),
		UserID:              raw.UserID,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		APIAccessKey:        raw.APIAccessKey,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Location:            time.UTC,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if raw.Timezone != "" {
		if loc, err := time.LoadLocation(raw.Timezone); err != nil {
			slog.Warn("Invalid timezone, using UTC", "timezone", raw.Timezone, "error", err)
		} else {
			cfg.Location = loc
		}
	}

	return cfg, nil
}

func validate(raw *rawCfg) error {
	positive := map[string]int{
		"worker-count":      raw.WorkerCount,
		"fetch-concurrency": raw.FetchConcurrency,
		"notify-interval":   raw.NotifyInterval,
		"notify-grace":      raw.NotifyGraceWindow,
		"refresh-interval":  raw.RefreshInterval,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("--%s must be positive, got %d", name, value)
		}
	}

	if raw.RequestsPerMinute < 0 {
		return fmt.Errorf("--requests-per-minute must not be negative")
	}
	if raw.AccountSyncInterval < 0 {
		return fmt.Errorf("--sync-interval must not be negative")
	}

	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	t.Setenv("TZ", "")

	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "./data/anitrack.db" {
		t.Errorf("Expected default db path, got '%s'", cfg.DBPath)
	}
	if cfg.AniListURL != "https://graphql.anilist.co" {
		t.Errorf("Expected AniList endpoint, got '%s'", cfg.AniListURL)
	}
	if cfg.NotifyInterval != 60*time.Second {
		t.Errorf("Expected notify interval 60s, got %v", cfg.NotifyInterval)
	}
	if cfg.NotifyGraceWindow != 600*time.Second {
		t.Errorf("Expected grace window 600s, got %v", cfg.NotifyGraceWindow)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Expected UTC location, got %v", cfg.Location)
	}
	if cfg.UserID != "" {
		t.Errorf("Expected account sync to be off by default, got user '%s'", cfg.UserID)
	}
}

func TestLoadArgsOverrides(t *testing.T) {
	t.Setenv("NOTIFY_URL", "http://localhost:3000/notify")

	cfg, err := LoadArgs([]string{
		"--port", "9090",
		"--timezone", "Asia/Tokyo",
		"--notify-grace", "300",
		"--user-id", "user-1",
		"--debug",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Port)
	}
	if cfg.NotifyURL != "http://localhost:3000/notify" {
		t.Errorf("Expected notify url from env, got '%s'", cfg.NotifyURL)
	}
	if cfg.NotifyGraceWindow != 5*time.Minute {
		t.Errorf("Expected grace 5m, got %v", cfg.NotifyGraceWindow)
	}
	if cfg.Location.String() != "Asia/Tokyo" {
		t.Errorf("Expected Asia/Tokyo, got %v", cfg.Location)
	}
	if cfg.UserID != "user-1" || !cfg.Debug {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestLoadArgsInvalidTimezoneFallsBack(t *testing.T) {
	cfg, err := LoadArgs([]string{"--timezone", "Mars/Olympus"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Expected UTC fallback, got %v", cfg.Location)
	}
}

func TestLoadArgsValidation(t *testing.T) {
	tests := [][]string{
		{"--worker-count", "0"},
		{"--notify-interval", "-1"},
		{"--sync-interval", "-5"},
		{"--requests-per-minute", "-1"},
		{"--not-a-flag"},
	}

	for _, args := range tests {
		if _, err := LoadArgs(args); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}

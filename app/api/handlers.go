package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/anitrack/app/calendar"
	"github.com/lysyi3m/anitrack/app/schedule"
	"github.com/lysyi3m/anitrack/app/tasks"
	"github.com/lysyi3m/anitrack/app/timeshift"
	"github.com/lysyi3m/anitrack/app/watchlist"
)

func NewHandler(tracker Tracker, catalog CatalogSource, cache CacheStore, syncer AccountSyncer,
	releases ReleaseLog, scheduler tasks.TaskSchedulerInterface, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Handler{
		tracker:   tracker,
		catalog:   catalog,
		cache:     cache,
		syncer:    syncer,
		releases:  releases,
		scheduler: scheduler,
		generator: calendar.NewGenerator(),
		opts:      opts,
		now:       time.Now,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	snapshot := h.tracker.Snapshot()

	health := map[string]interface{}{
		"timestamp":    h.now().In(h.opts.Location).Format(time.RFC3339),
		"anime":        len(snapshot.Anime),
		"calendar":     len(snapshot.Calendar),
		"account_sync": h.syncer.Enabled(),
		"version":      h.opts.Version,
	}

	if entries, err := h.cache.Entries(""); err == nil {
		health["cache_entries"] = len(entries)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetCalendarFeed(c *gin.Context) {
	days, ok := h.project(c)
	if !ok {
		return
	}

	rss, err := h.generator.Run(days, calendar.Meta{
		Title:    "Anime release calendar",
		Link:     h.baseURL(),
		SelfLink: h.baseURL() + "/calendar.rss",
		Version:  h.opts.Version,
	})
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Calendar-Days", strconv.Itoa(len(days)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) APIListAnime(c *gin.Context) {
	snapshot := h.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"anime": snapshot.Anime,
		"total": len(snapshot.Anime),
	})
}

func (h *Handler) APIGetAnime(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	a, found := h.tracker.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Anime not found in watching list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"anime":       a,
		"in_calendar": h.tracker.Snapshot().InCalendar(id),
	})
}

func (h *Handler) APIAddAnime(c *gin.Context) {
	var req addAnimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing anime name"})
		return
	}

	a, err := h.tracker.Add(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, "add_anime", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"anime": a})
}

func (h *Handler) APIRemoveAnime(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	if err := h.tracker.Remove(id); err != nil {
		writeError(c, "remove_anime", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) APIToggleFavorite(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	a, err := h.tracker.ToggleFavorite(id)
	if err != nil {
		writeError(c, "toggle_favorite", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APISetReleaseTime(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	var req releaseTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing release time"})
		return
	}

	ts, err := timeshift.ParseLocalTime(req.Time, h.opts.Location)
	if err != nil {
		writeError(c, "set_release_time", err)
		return
	}

	a, err := h.tracker.SetExactTime(id, ts)
	if err != nil {
		writeError(c, "set_release_time", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APIAdjustReleaseTime(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	var req offsetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Seconds == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or zero offset"})
		return
	}

	a, err := h.tracker.AdjustByOffset(id, req.Seconds)
	if err != nil {
		writeError(c, "adjust_release_time", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APIResetReleaseTime(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	a, err := h.tracker.ResetToOriginal(id)
	if err != nil {
		writeError(c, "reset_release_time", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APISetSiteLink(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	var req siteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing site link"})
		return
	}

	a, err := h.tracker.SetSiteURL(id, req.URL)
	if err != nil {
		writeError(c, "set_site_link", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APIResetSiteLink(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	a, err := h.tracker.ResetSiteURL(id)
	if err != nil {
		writeError(c, "reset_site_link", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": a})
}

func (h *Handler) APISearch(c *gin.Context) {
	limit := 6
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 25 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 25"})
			return
		}
		limit = n
	}

	results, err := h.catalog.SearchSuggestions(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		writeError(c, "search", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

func (h *Handler) APIAddToCalendar(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	if err := h.tracker.AddToCalendar(c.Request.Context(), id); err != nil {
		writeError(c, "add_to_calendar", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) APIRemoveFromCalendar(c *gin.Context) {
	id, ok := animeID(c)
	if !ok {
		return
	}

	if err := h.tracker.RemoveFromCalendar(id); err != nil {
		writeError(c, "remove_from_calendar", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) APIGetCalendar(c *gin.Context) {
	days, ok := h.project(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":     days,
		"timezone": h.opts.Location.String(),
	})
}

func (h *Handler) APIRefillCalendar(c *gin.Context) {
	force := c.Query("force") == "true"

	task := tasks.NewRefillCalendarTask(h.tracker, force)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing refill task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue refill task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) APIGetUpcoming(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
			return
		}
		limit = n
	}

	items, err := h.catalog.GetUpcoming(c.Request.Context(), limit)
	if err != nil {
		writeError(c, "get_upcoming", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"upcoming": items, "total": len(items)})
}

func (h *Handler) APISyncAccount(c *gin.Context) {
	if !h.syncer.Enabled() {
		c.JSON(http.StatusConflict, gin.H{"error": "Account sync is not configured"})
		return
	}

	snapshot, err := h.syncer.Sync(c.Request.Context())
	if err != nil {
		writeError(c, "sync_account", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anime": snapshot.Anime, "total": len(snapshot.Anime)})
}

func (h *Handler) APIListCache(c *gin.Context) {
	entries, err := h.cache.Entries(c.Query("prefix"))
	if err != nil {
		writeError(c, "list_cache", err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"key":        e.Key,
			"size":       len(e.Value),
			"updated_at": e.UpdatedAt.In(h.opts.Location).Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": items, "total": len(items)})
}

func (h *Handler) APIClearCache(c *gin.Context) {
	removed, err := h.cache.Clear(c.Query("prefix"))
	if err != nil {
		writeError(c, "clear_cache", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

func (h *Handler) APIDeleteAllData(c *gin.Context) {
	h.tracker.ClearAll()

	if _, err := h.cache.Clear(""); err != nil {
		writeError(c, "delete_all_data", err)
		return
	}
	if err := h.releases.Clear(); err != nil {
		writeError(c, "delete_all_data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) project(c *gin.Context) ([]calendar.Day, bool) {
	mode, err := calendar.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 31 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 31"})
			return nil, false
		}
		days = n
	}

	now := h.now()
	start := now
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.opts.Location)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
			return nil, false
		}
		start = parsed
	}

	window := calendar.WeekWindow(start, days, h.opts.Location)
	return calendar.Project(h.tracker.Snapshot().Calendar, window, mode, now.Unix()), true
}

func (h *Handler) baseURL() string {
	if h.opts.BaseUrl != "" {
		return h.opts.BaseUrl
	}
	return fmt.Sprintf("http://localhost:%s", h.opts.Port)
}

func animeID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid anime id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, watchlist.ErrNotTracked):
		status = http.StatusNotFound
	case errors.Is(err, watchlist.ErrDuplicate), errors.Is(err, timeshift.ErrFinished):
		status = http.StatusConflict
	case errors.Is(err, timeshift.ErrInvalidTime), errors.Is(err, timeshift.ErrNoReference),
		errors.Is(err, watchlist.ErrInvalidLink):
		status = http.StatusBadRequest
	case errors.Is(err, schedule.ErrRemoteUnavailable):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "operation", operation, "error", err)
	} else {
		slog.Debug("Request rejected", "operation", operation, "status", status, "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

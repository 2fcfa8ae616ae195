package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP engine with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/calendar.rss", handler.GetCalendarFeed)
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API endpoints require authentication")
	} else {
		slog.Warn("API endpoints are open (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/anime", handler.APIListAnime)
		api.POST("/anime", handler.APIAddAnime)
		api.GET("/anime/:id", handler.APIGetAnime)
		api.DELETE("/anime/:id", handler.APIRemoveAnime)
		api.POST("/anime/:id/favorite", handler.APIToggleFavorite)

		api.PUT("/anime/:id/release-time", handler.APISetReleaseTime)
		api.POST("/anime/:id/release-time/offset", handler.APIAdjustReleaseTime)
		api.DELETE("/anime/:id/release-time", handler.APIResetReleaseTime)

		api.PUT("/anime/:id/link", handler.APISetSiteLink)
		api.DELETE("/anime/:id/link", handler.APIResetSiteLink)

		api.POST("/anime/:id/calendar", handler.APIAddToCalendar)
		api.DELETE("/anime/:id/calendar", handler.APIRemoveFromCalendar)

		api.GET("/calendar", handler.APIGetCalendar)
		api.POST("/calendar/refill", handler.APIRefillCalendar)
		api.GET("/search", handler.APISearch)
		api.GET("/upcoming", handler.APIGetUpcoming)
		api.POST("/account/sync", handler.APISyncAccount)

		api.GET("/cache", handler.APIListCache)
		api.DELETE("/cache", handler.APIClearCache)
		api.DELETE("/data", handler.APIDeleteAllData)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "AniTrack",
			"version":     handler.opts.Version,
			"description": "Anime watch list with release calendar, schedule caching and release notifications",
			"endpoints": map[string]string{
				"calendar": "/calendar.rss?days=7&mode=all|next",
				"health":   "/health",
				"anime":    "/api/anime",
				"schedule": "/api/calendar?start=YYYY-MM-DD&days=7&mode=all|next",
				"search":   "/api/search?q=<name>&limit=6",
				"upcoming": "/api/upcoming?limit=10",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			return
		}

		if providedKey != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}

		c.Next()
	}
}

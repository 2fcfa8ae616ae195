package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://graphql.anilist.co"

// ErrNotFound is returned when the catalog reports no matching media
var ErrNotFound = errors.New("media not found")

// Client talks to the AniList GraphQL endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewClient creates a catalog client. requestsPerMinute <= 0 disables rate limiting.
func NewClient(endpoint string, httpClient *http.Client, userAgent string, requestsPerMinute int) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		userAgent:  userAgent,
		limiter:    limiter,
		timeout:    30 * time.Second,
	}
}

// Search returns the catalog's best match for name
func (c *Client) Search(ctx context.Context, name string) (*Media, error) {
	var data struct {
		Media *Media `json:"Media"`
	}
	if err := c.query(ctx, searchQuery, map[string]any{"search": name}, &data); err != nil {
		return nil, err
	}
	if data.Media == nil {
		return nil, ErrNotFound
	}
	return data.Media, nil
}

// SearchMany returns up to limit catalog matches for name, best first
func (c *Client) SearchMany(ctx context.Context, name string, limit int) ([]Media, error) {
	var data struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	}
	if err := c.query(ctx, searchManyQuery, map[string]any{"search": name, "perPage": limit}, &data); err != nil {
		return nil, err
	}
	if data.Page.Media == nil {
		return []Media{}, nil
	}
	return data.Page.Media, nil
}

// Details returns descriptive metadata for one media id
func (c *Client) Details(ctx context.Context, id int) (*Media, error) {
	var data struct {
		Media *Media `json:"Media"`
	}
	if err := c.query(ctx, detailsQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Media == nil {
		return nil, ErrNotFound
	}
	return data.Media, nil
}

// FullSchedule returns every known broadcast of a media, aired or not. A null
// media is an empty schedule.
func (c *Client) FullSchedule(ctx context.Context, id int) ([]ScheduleNode, error) {
	var data struct {
		Media *struct {
			AiringSchedule struct {
				Nodes []ScheduleNode `json:"nodes"`
			} `json:"airingSchedule"`
		} `json:"Media"`
	}
	if err := c.query(ctx, fullScheduleQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Media == nil || data.Media.AiringSchedule.Nodes == nil {
		return []ScheduleNode{}, nil
	}
	return data.Media.AiringSchedule.Nodes, nil
}

// NextAiring returns not yet aired broadcasts for ids in ascending time order
func (c *Client) NextAiring(ctx context.Context, ids []int) ([]AiringSchedule, error) {
	var data struct {
		Page struct {
			AiringSchedules []AiringSchedule `json:"airingSchedules"`
		} `json:"Page"`
	}
	if err := c.query(ctx, nextAiringQuery, map[string]any{"ids": ids}, &data); err != nil {
		return nil, err
	}
	return data.Page.AiringSchedules, nil
}

// Upcoming returns the soonest broadcasts across the whole catalog
func (c *Client) Upcoming(ctx context.Context, limit int) ([]AiringSchedule, error) {
	var data struct {
		Page struct {
			AiringSchedules []AiringSchedule `json:"airingSchedules"`
		} `json:"Page"`
	}
	if err := c.query(ctx, upcomingQuery, map[string]any{"perPage": limit}, &data); err != nil {
		return nil, err
	}
	return data.Page.AiringSchedules, nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query catalog: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			if e.Status == http.StatusNotFound {
				return ErrNotFound
			}
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("graphql error: %s", strings.Join(messages, "; "))
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("empty response data")
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}

	return nil
}

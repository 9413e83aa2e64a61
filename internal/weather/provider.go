// Package weather fetches current conditions for detection enrichment,
// serving a cached observation between polls.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/featherwatch/featherwatch/internal/errors"
	"github.com/featherwatch/featherwatch/internal/logging"
)

// Observation is one weather reading.
type Observation struct {
	TempC     float64   `json:"temp"`
	Condition string    `json:"condition"`
	FetchedAt time.Time `json:"-"`
}

// Provider returns the current weather observation.
type Provider interface {
	Current(ctx context.Context) (Observation, error)
}

// Client polls an HTTP weather endpoint. Observations younger than the poll
// interval are served from cache; on fetch failure a stale observation is
// served rather than none.
type Client struct {
	endpoint     string
	apiKey       string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu   sync.Mutex
	last *Observation
}

// NewClient creates a weather client polling at most every pollInterval.
func NewClient(endpoint, apiKey string, pollInterval time.Duration) *Client {
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logging.ForService("weather"),
	}
}

// Current returns the freshest available observation.
func (c *Client) Current(ctx context.Context) (Observation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && time.Since(c.last.FetchedAt) < c.pollInterval {
		return *c.last, nil
	}

	obs, err := c.fetch(ctx)
	if err != nil {
		if c.last != nil {
			c.logger.Debug("serving stale weather observation", "error", err)
			return *c.last, nil
		}
		return Observation{}, err
	}

	obs.FetchedAt = time.Now()
	c.last = &obs
	return obs, nil
}

func (c *Client) fetch(ctx context.Context) (Observation, error) {
	reqURL := fmt.Sprintf("%s/current?appid=%s", c.endpoint, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Observation{}, errors.New(err).
			Component("weather").
			Category(errors.CategoryWeather).
			Context("operation", "build_request").
			Build()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Observation{}, errors.New(err).
			Component("weather").
			Category(errors.CategoryWeather).
			Context("operation", "fetch_current").
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Observation{}, errors.Newf("weather service returned status %d", resp.StatusCode).
			Component("weather").
			Category(errors.CategoryWeather).
			Build()
	}

	var obs Observation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return Observation{}, errors.New(err).
			Component("weather").
			Category(errors.CategoryWeather).
			Context("operation", "decode_response").
			Build()
	}
	return obs, nil
}

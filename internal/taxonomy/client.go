// Package taxonomy resolves detection labels to species records via an
// external taxonomy service, with in-memory caching.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/featherwatch/featherwatch/internal/errors"
	"github.com/featherwatch/featherwatch/internal/logging"
)

// Species is one taxonomy record.
type Species struct {
	ScientificName string `json:"sciName"`
	CommonName     string `json:"comName"`
	SpeciesCode    string `json:"speciesCode"`
}

// Resolver looks up a species by its detection label.
type Resolver interface {
	Resolve(ctx context.Context, label string) (Species, error)
}

// Client resolves species against an HTTP taxonomy endpoint. Lookups are
// cached, including negative results, so repeated detections of the same
// species stay cheap.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      *gocache.Cache
	logger     *slog.Logger
}

// NewClient creates a taxonomy client. Cached entries expire after cacheTTL.
func NewClient(endpoint string, cacheTTL time.Duration) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
		logger:     logging.ForService("taxonomy"),
	}
}

// Resolve returns the species record for a detection label. Unknown labels
// return a not-found error which is itself cached.
func (c *Client) Resolve(ctx context.Context, label string) (Species, error) {
	key := strings.ToLower(label)
	if cached, ok := c.cache.Get(key); ok {
		// A cached nil marks a previous not-found answer.
		if sp, ok := cached.(*Species); ok && sp != nil {
			return *sp, nil
		}
		return Species{}, errors.Newf("species %q not found", label).
			Component("taxonomy").
			Category(errors.CategoryNotFound).
			Build()
	}

	sp, err := c.fetch(ctx, label)
	if err != nil {
		if errors.IsNotFound(err) {
			c.cache.SetDefault(key, (*Species)(nil))
		}
		return Species{}, err
	}

	c.cache.SetDefault(key, &sp)
	return sp, nil
}

func (c *Client) fetch(ctx context.Context, label string) (Species, error) {
	reqURL := fmt.Sprintf("%s/species?name=%s", c.endpoint, url.QueryEscape(label))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Species{}, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryTaxonomy).
			Context("operation", "build_request").
			Build()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Species{}, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryTaxonomy).
			Context("operation", "fetch_species").
			Context("label", label).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Species{}, errors.Newf("species %q not found", label).
			Component("taxonomy").
			Category(errors.CategoryNotFound).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		return Species{}, errors.Newf("taxonomy service returned status %d", resp.StatusCode).
			Component("taxonomy").
			Category(errors.CategoryTaxonomy).
			Context("label", label).
			Build()
	}

	var sp Species
	if err := json.NewDecoder(resp.Body).Decode(&sp); err != nil {
		return Species{}, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryTaxonomy).
			Context("operation", "decode_response").
			Build()
	}
	if sp.ScientificName == "" {
		return Species{}, errors.Newf("species %q not found", label).
			Component("taxonomy").
			Category(errors.CategoryNotFound).
			Build()
	}
	return sp, nil
}

// Package n2yo is a thin client for the N2YO satellite REST API.
package n2yo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/credentials"
	"github.com/Ramsey-B/aster/pkg/expressions"
	"github.com/Ramsey-B/aster/pkg/fetcher"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	DefaultBaseURL      = "https://api.n2yo.com/rest/v1/satellite"
	DefaultSearchRadius = 70

	// RejectExpression matches the error envelope N2YO sends with a 200 when
	// the api key is invalid or over its hourly limit
	RejectExpression = "error"

	candidatesExpression = "above[].{id: satid, name: satname}"
	tleExpression        = "tle"
)

// ErrNotFound is returned when the upstream has no data for an id
var ErrNotFound = errors.New("satellite not found")

// Fetcher is the resilient fetch layer the client sends through
type Fetcher interface {
	Fetch(ctx context.Context, build fetcher.RequestBuilder) (*httpclient.Response, error)
}

// Config holds client settings
type Config struct {
	BaseURL          string
	ObserverAltitude float64
	SearchRadius     int
}

// Candidate is a satellite reported overhead a probe point
type Candidate struct {
	ExternalID int64
	Name       string
}

// Client queries the "above" and "tle" endpoints
type Client struct {
	fetcher   Fetcher
	cfg       Config
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
}

// NewClient creates a client. Zero config values fall back to defaults.
func NewClient(f Fetcher, cfg Config, evaluator *expressions.Evaluator, logger ectologger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = DefaultSearchRadius
	}
	if evaluator == nil {
		evaluator = expressions.NewEvaluator()
	}

	return &Client{
		fetcher:   f,
		cfg:       cfg,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Above lists satellites of category currently above point
func (c *Client) Above(ctx context.Context, point models.ProbePoint, category int) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "N2YO.Above")
	defer span.End()

	path := fmt.Sprintf("/above/%s/%s/%s/%d/%d",
		formatFloat(point.Lat), formatFloat(point.Lng), formatFloat(c.cfg.ObserverAltitude), c.cfg.SearchRadius, category)

	resp, err := c.fetcher.Fetch(ctx, c.builder(path))
	if err != nil {
		return nil, err
	}

	records, err := c.evaluator.Records(candidatesExpression, resp.BodyJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to extract candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(records))
	for _, fields := range records {
		id, ok := expressions.Int64(fields["id"])
		if !ok || id <= 0 {
			c.logger.WithContext(ctx).WithFields(map[string]any{
				"category": category,
				"point":    point.String(),
			}).Warnf("Skipping candidate without a usable id: %v", fields["id"])
			continue
		}
		name, _ := fields["name"].(string)
		candidates = append(candidates, Candidate{ExternalID: id, Name: strings.TrimSpace(name)})
	}

	c.logger.WithContext(ctx).Debugf("N2YO above %s category %d returned %d candidates", point, category, len(candidates))
	return candidates, nil
}

// TLE returns the two-line element set for a satellite. An empty payload is
// reported as ErrNotFound.
func (c *Client) TLE(ctx context.Context, externalID int64) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "N2YO.TLE")
	defer span.End()

	resp, err := c.fetcher.Fetch(ctx, c.builder(fmt.Sprintf("/tle/%d", externalID)))
	if err != nil {
		return "", err
	}

	tle, err := c.evaluator.Text(tleExpression, resp.BodyJSON)
	if err != nil {
		return "", fmt.Errorf("failed to extract tle: %w", err)
	}
	if strings.TrimSpace(tle) == "" {
		return "", fmt.Errorf("%w: %d", ErrNotFound, externalID)
	}
	return tle, nil
}

func (c *Client) builder(path string) fetcher.RequestBuilder {
	return func(ctx context.Context, credential credentials.Credential) (*http.Request, error) {
		query := url.Values{}
		query.Set("apiKey", string(credential))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

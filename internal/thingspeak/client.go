package thingspeak

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
)

// Client fetches channel feeds from the ThingSpeak REST API
type Client struct {
	http     *resty.Client
	logger   *zap.Logger
	capacity int
}

// NewClient creates a ThingSpeak API client. capacity caps the results
// parameter; ThingSpeak serves at most 100 entries per request.
func NewClient(baseURL string, timeout time.Duration, capacity int, logger *zap.Logger) *Client {
	if capacity < 1 {
		capacity = 1
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		logger:   logger,
		capacity: capacity,
	}
}

// Capacity returns the maximum results per fetch
func (c *Client) Capacity() int {
	return c.capacity
}

// FetchFeed retrieves the most recent entries for a channel. results is
// clamped to [1, capacity]. A non-2xx answer yields a StatusError and a
// body without the expected keys yields a ParseError; in both cases the
// caller keeps whatever series it already has.
func (c *Client) FetchFeed(ctx context.Context, channelID int, apiKey string, results int) (*Feed, error) {
	if results < 1 {
		results = 1
	}
	if results > c.capacity {
		results = c.capacity
	}

	channelLabel := strconv.Itoa(channelID)
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("channelID", channelLabel).
		SetQueryParam("api_key", apiKey).
		SetQueryParam("results", strconv.Itoa(results)).
		Get("/channels/{channelID}/feeds.json")
	if err != nil {
		metrics.RecordUpstreamRequest(channelLabel, 0, time.Since(start))
		c.logger.Warn("ThingSpeak request failed",
			zap.Int("channel", channelID),
			zap.Error(err))
		return nil, fmt.Errorf("fetching channel %d: %w", channelID, err)
	}

	metrics.RecordUpstreamRequest(channelLabel, resp.StatusCode(), resp.Time())

	if !resp.IsSuccess() {
		c.logger.Warn("ThingSpeak returned error status",
			zap.Int("channel", channelID),
			zap.Int("status_code", resp.StatusCode()))
		return nil, &StatusError{Code: resp.StatusCode()}
	}

	feed, err := ParseFeed(resp.Body())
	if err != nil {
		c.logger.Warn("ThingSpeak response failed to parse",
			zap.Int("channel", channelID),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("Fetched channel feed",
		zap.Int("channel", channelID),
		zap.Int("entries", len(feed.Entries)),
		zap.Duration("duration", resp.Time()))

	return feed, nil
}

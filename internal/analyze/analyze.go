// Package analyze sends a URL to the article analysis service and tracks the
// state of a single analyze submission.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/readpilot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrEmptyURL = errors.New("url is empty")

// Card is one generated question and answer pair.
type Card struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// Analyzer turns an article URL into cards.
type Analyzer interface {
	Analyze(ctx context.Context, articleURL string) ([]Card, error)
}

// Response is the analysis service wire format, also returned by /api/analyze.
type Response struct {
	Data []Card `json:"data"`
}

// Client calls the analysis service over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	metrics  *telemetry.Metrics
}

func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid analysis endpoint %q", endpoint)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{endpoint: endpoint, http: httpClient, metrics: telemetry.GetMetrics()}, nil
}

// Analyze posts {url} to the analysis service and returns the cards it generated.
func (c *Client) Analyze(ctx context.Context, articleURL string) ([]Card, error) {
	if strings.TrimSpace(articleURL) == "" {
		return nil, ErrEmptyURL
	}

	start := time.Now()
	cards, err := c.analyze(ctx, articleURL)

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.AnalyzeErrorsTotal.Add(ctx, 1)
	} else {
		c.metrics.AnalyzeCardsTotal.Add(ctx, int64(len(cards)))
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	c.metrics.AnalyzeRequestsTotal.Add(ctx, 1, attrs)
	c.metrics.AnalyzeDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	return cards, err
}

func (c *Client) analyze(ctx context.Context, articleURL string) ([]Card, error) {
	body, err := json.Marshal(map[string]string{"url": articleURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analysis service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}

	if out.Data == nil {
		out.Data = []Card{}
	}

	return out.Data, nil
}

// Workflow is the view state of the analyze form.
type Workflow struct {
	URL       string
	Loading   bool
	Results   []Card
	ShowCards bool
}

// Submit runs one analyze request for w.URL. An empty URL makes no call. On
// failure Results and ShowCards keep their previous values. Loading is always
// cleared on return.
func (w *Workflow) Submit(ctx context.Context, analyzer Analyzer) error {
	log := zerolog.Ctx(ctx)

	if strings.TrimSpace(w.URL) == "" {
		log.Info().Msg("analyze submitted without a url")
		return ErrEmptyURL
	}

	w.Loading = true
	defer func() { w.Loading = false }()

	cards, err := analyzer.Analyze(ctx, w.URL)
	if err != nil {
		log.Error().Err(err).Str("url", w.URL).Msg("analyze failed")
		return err
	}

	w.Results = cards
	w.ShowCards = true

	return nil
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/circuitbreaker"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// HistoryClient fetches daily weather observations for a location and date range.
type HistoryClient interface {
	FetchDaily(ctx context.Context, req HistoryRequest) ([]DailyObservation, error)
	// Source is the tag recorded on resolved data and cache entries.
	Source() string
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrEmptyResult      = errors.New("empty result")
	ErrNotImplemented   = errors.New("not implemented")
)

// HistoryRequest selects a location and an inclusive date range. Coordinates win when set;
// otherwise City/State are sent as a free-text location.
type HistoryRequest struct {
	Lat   float64
	Lon   float64
	City  string
	State string
	Start time.Time
	End   time.Time
}

// Location renders the request's location path segment, or "" when nothing usable is set.
func (r HistoryRequest) Location() string {
	if r.Lat != 0 || r.Lon != 0 {
		return strconv.FormatFloat(r.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(r.Lon, 'f', 4, 64)
	}
	city, state := strings.TrimSpace(r.City), strings.TrimSpace(r.State)
	switch {
	case city != "" && state != "":
		return city + "," + state
	case city != "":
		return city
	default:
		return state
	}
}

// DailyObservation is one day of weather history. Units are US (inches, °F, mph).
type DailyObservation struct {
	Date        string  `json:"datetime"`
	Temp        float64 `json:"temp"`
	TempMax     float64 `json:"tempmax"`
	TempMin     float64 `json:"tempmin"`
	Precip      float64 `json:"precip"`
	Snow        float64 `json:"snow"`
	WindSpeed   float64 `json:"windspeed"`
	WindGust    float64 `json:"windgust"`
	Conditions  string  `json:"conditions"`
	Description string  `json:"description"`
}

// SourceVisualCrossing tags data resolved from the Visual Crossing timeline API.
const SourceVisualCrossing = "visual_crossing"

const dateLayout = "2006-01-02"

// VisualCrossingConfig configures a VisualCrossingClient. Zero retry settings use defaults.
type VisualCrossingConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Breaker        *circuitbreaker.CircuitBreaker
}

// VisualCrossingClient calls the Visual Crossing timeline API for daily history.
type VisualCrossingClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewVisualCrossingClient returns ErrInvalidAPIKey when no key is configured; callers treat
// that as "history disabled" and run cache-only.
func NewVisualCrossingClient(cfg VisualCrossingConfig) (*VisualCrossingClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	return &VisualCrossingClient{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		breaker:        cfg.Breaker,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Source implements HistoryClient.
func (c *VisualCrossingClient) Source() string { return SourceVisualCrossing }

type timelineResponse struct {
	ResolvedAddress string             `json:"resolvedAddress"`
	Days            []DailyObservation `json:"days"`
}

// FetchDaily implements HistoryClient. Transient failures are retried with jittered
// exponential backoff; the whole call runs behind the circuit breaker when one is set.
func (c *VisualCrossingClient) FetchDaily(ctx context.Context, req HistoryRequest) ([]DailyObservation, error) {
	if req.Location() == "" {
		return nil, fmt.Errorf("%w: no coordinates or city/state", ErrLocationNotFound)
	}
	if c.breaker == nil {
		return c.fetchWithRetry(ctx, req)
	}
	var days []DailyObservation
	err := c.breaker.Call(ctx, func() error {
		var err error
		days, err = c.fetchWithRetry(ctx, req)
		return err
	})
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return nil, err
	}
	return days, nil
}

func (c *VisualCrossingClient) fetchWithRetry(ctx context.Context, req HistoryRequest) ([]DailyObservation, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		days, err := c.callAPI(ctx, req)
		if err == nil {
			return days, nil
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *VisualCrossingClient) callAPI(ctx context.Context, req HistoryRequest) ([]DailyObservation, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.buildRequest(reqCtx, req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		httpReq.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	var body timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(body.Days) == 0 {
		return nil, fmt.Errorf("%w: no daily records for %s", ErrEmptyResult, req.Location())
	}
	return body.Days, nil
}

// isRetryable reports whether err is transient. A cancelled caller is never retried.
func (c *VisualCrossingClient) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "http request failed")
}

func (c *VisualCrossingClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *VisualCrossingClient) buildRequest(ctx context.Context, req HistoryRequest) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/timeline/" + url.PathEscape(req.Location()) +
		"/" + req.Start.Format(dateLayout) + "/" + req.End.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("unitGroup", "us")
	params.Set("include", "days")
	params.Set("elements", "datetime,temp,tempmax,tempmin,precip,snow,windspeed,windgust,conditions,description")
	params.Set("contentType", "json")
	params.Set("key", c.apiKey)
	u.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func (c *VisualCrossingClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusBadRequest, http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrLocationNotFound, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

// ValidateAPIKey makes a single-day request to confirm the key is accepted.
func (c *VisualCrossingClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	day := time.Now().UTC().AddDate(0, 0, -1)
	req, err := c.buildRequest(ctx, HistoryRequest{City: "Denver", State: "CO", Start: day, End: day})
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return "auth"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

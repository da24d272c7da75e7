// Package spapi is the HTTP client of the booking backend: provider catalog,
// available time slots, reservation submission and payment cancellation cleanup.
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bookflow/internal/metrics"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultBackoff    = 300 * time.Millisecond
	maxErrorBody      = 64 << 10
)

// Client calls the booking backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetries sets how many times read-only calls are retried after a
// transient failure, and the base delay that doubles per attempt.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithRateLimit caps outgoing requests per second; rps <= 0 disables the cap.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for retries and cache failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = *logger
		}
	}
}

// NewClient constructs a client for baseURL. apiKey is sent as x-api-key when set.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRedisCache configures optional Redis caching of provider catalogs.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetCatalog fetches GET /sp/{businessUrl}/data and validates it.
// Unusable catalogs are returned together with an ErrBadProviderData error.
func (c *Client) GetCatalog(ctx context.Context, businessURL string) (*Catalog, error) {
	endpoint := fmt.Sprintf("%s/sp/%s/data", c.baseURL, url.PathEscape(businessURL))
	cacheKey := "catalog:" + businessURL

	var catalog Catalog
	if !c.readCache(ctx, cacheKey, &catalog) {
		if err := c.getWithRetry(ctx, "catalog", endpoint, &catalog); err != nil {
			return nil, err
		}
		c.writeCache(ctx, cacheKey, catalog)
	}
	if catalog.Business.URL == "" {
		catalog.Business.URL = businessURL
	}
	if err := catalog.Validate(); err != nil {
		return &catalog, err
	}
	return &catalog, nil
}

// AvailableTimeSlots fetches provider-local slot minutes for a date.
// The endpoint may answer with {"slots": [...], "utc_offset": n} or a bare array.
func (c *Client) AvailableTimeSlots(ctx context.Context, businessURL string, q SlotQuery) (*SlotsResponse, error) {
	params := url.Values{}
	params.Set("date", q.Date)
	params.Set("clientTz", q.ClientTZ)
	for _, id := range q.ServiceIDs {
		params.Add("service_ids[]", strconv.FormatInt(id, 10))
	}
	params.Set("duration", strconv.Itoa(q.Duration))
	endpoint := fmt.Sprintf("%s/sp/%s/available-time-slots?%s", c.baseURL, url.PathEscape(businessURL), params.Encode())

	var raw json.RawMessage
	if err := c.getWithRetry(ctx, "available_time_slots", endpoint, &raw); err != nil {
		return nil, err
	}

	var resp SlotsResponse
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &resp.Slots); err != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
		return &resp, nil
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return &resp, nil
}

// CreateBooking submits a reservation. It is never retried.
func (c *Client) CreateBooking(ctx context.Context, businessURL string, req BookingRequest) (*BookingResponse, error) {
	endpoint := fmt.Sprintf("%s/sp/%s/booking", c.baseURL, url.PathEscape(businessURL))
	var resp BookingResponse
	if err := c.doPost(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURL == "" {
		return nil, fmt.Errorf("booking response without redirect_url")
	}
	return &resp, nil
}

// CancelReservation asks the backend to release a reservation whose payment was aborted.
func (c *Client) CancelReservation(ctx context.Context, req CancelRequest) error {
	endpoint := fmt.Sprintf("%s/cancel-reservation", c.baseURL)
	return c.doPost(ctx, endpoint, req, nil)
}

// HealthCheck checks if the backend answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, operation, endpoint string, out any) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncAPIRetry(operation)
			delay := c.backoff << (attempt - 1)
			c.logger.Warn().Err(err).Str("operation", operation).Int("attempt", attempt).
				Dur("delay", delay).Msg("retrying api call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = c.doGet(ctx, endpoint, out)
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
	}
	return err
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Message string       `json:"message"`
		Error   string       `json:"error"`
		Code    string       `json:"code"`
		Errors  []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
		apiErr.Code = payload.Code
		apiErr.Fields = payload.Errors
		if apiErr.Message == "" && len(payload.Errors) > 0 {
			apiErr.Message = payload.Errors[0].Message
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

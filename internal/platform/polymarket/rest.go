package polymarket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultClobURL  = "https://clob.polymarket.com"

	// Request budgets sit at roughly 60% of the documented venue limits.
	gammaRatePerSec = 18
	gammaBurst      = 10
	booksRatePerSec = 30
	booksBurst      = 5
	clobRatePerSec  = 50
	clobBurst       = 10
)

// Option configures a Gamma or CLOB client.
type Option func(*rest)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(r *rest) { r.httpClient = hc }
}

// WithRateLimit overrides the client's request budget.
func WithRateLimit(perSec float64, burst int) Option {
	return func(r *rest) { r.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// rest is the plumbing shared by the API clients: one base URL, one
// limiter, status mapping.
type rest struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRest(baseURL string, perSec float64, burst int, opts []Option) rest {
	r := rest{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

// do sends one request after waiting on limiter and returns the body of a
// 2xx response. Headers are applied as given.
func (r *rest) do(ctx context.Context, limiter *rate.Limiter, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	if limiter == nil {
		limiter = r.limiter
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransientIO, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransientIO, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

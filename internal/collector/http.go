package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cicconel11/TruthLayer-sub001/internal/httpclient"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const (
	// DefaultBaseURL is the default base URL for the collector service.
	DefaultBaseURL = "http://localhost:8090"
	// DefaultTimeout is the default timeout for collect requests.
	DefaultTimeout = 120 * time.Second
	// ServiceTokenExpirationHours is the expiration time for service-to-service JWT tokens.
	ServiceTokenExpirationHours = 24

	collectPath = "/api/v1/collect"
)

// HTTPCollector is a client for the platform's collector service.
type HTTPCollector struct {
	baseURL    string
	httpClient *http.Client
	jwtSecret  string
	logger     logger.Logger
}

// Option is a function that configures an HTTPCollector.
type Option func(*HTTPCollector)

// WithBaseURL sets the base URL for the collector service.
func WithBaseURL(baseURL string) Option {
	return func(c *HTTPCollector) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *HTTPCollector) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout for collect requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPCollector) {
		c.httpClient.Timeout = timeout
	}
}

// WithJWTSecret sets the secret used to sign service-to-service tokens.
func WithJWTSecret(secret string) Option {
	return func(c *HTTPCollector) {
		c.jwtSecret = secret
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *HTTPCollector) {
		c.logger = log
	}
}

// NewHTTPCollector creates a collector service client.
func NewHTTPCollector(opts ...Option) *HTTPCollector {
	c := &HTTPCollector{
		baseURL: DefaultBaseURL,
		httpClient: httpclient.NewClient(&httpclient.ClientConfig{
			Timeout: DefaultTimeout,
		}),
		logger: logger.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collect posts one request to the collector service and decodes the result.
// The result's duration is measured client-side.
func (c *HTTPCollector) Collect(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	collectURL, err := url.JoinPath(c.baseURL, collectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to construct URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, collectURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var result Result
	if doErr := c.doRequest(httpReq, &result); doErr != nil {
		return nil, fmt.Errorf("failed to collect results for %q: %w", req.Query, doErr)
	}
	result.Metadata.Duration = time.Since(start)

	c.logger.Debug("collected query",
		logger.String("query", req.Query),
		logger.Int("results", len(result.Results)),
		logger.Duration("duration", result.Metadata.Duration))
	return &result, nil
}

// CollectBatch collects each request in order. Failures leave a nil slot and
// are aggregated into the returned error.
func (c *HTTPCollector) CollectBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	var errs []error

	for i, req := range reqs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, fmt.Errorf("batch aborted at query %q: %w", req.Query, ctxErr))
			break
		}

		result, err := c.Collect(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = result
	}

	return results, errors.Join(errs...)
}

// generateServiceToken generates a JWT token for service-to-service authentication.
func (c *HTTPCollector) generateServiceToken() (string, error) {
	if c.jwtSecret == "" {
		return "", errors.New("JWT secret not configured")
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ServiceTokenExpirationHours * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Subject:   "orchestration-engine",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.jwtSecret))
}

// doRequest executes an HTTP request and decodes the response.
func (c *HTTPCollector) doRequest(req *http.Request, result any) error {
	if c.jwtSecret != "" {
		token, err := c.generateServiceToken()
		if err != nil {
			return fmt.Errorf("failed to generate service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("failed to connect to collector service at %s: %w", c.baseURL, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("failed to read response body: %w", readErr)
	}

	const minErrorStatusCode = 400
	if resp.StatusCode >= minErrorStatusCode {
		var errResp errorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			return fmt.Errorf("collector error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("collector error (status %d): %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	if unmarshalErr := json.Unmarshal(body, result); unmarshalErr != nil {
		return fmt.Errorf("failed to decode response: %w", unmarshalErr)
	}

	return nil
}

// errorResponse is the collector service's error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

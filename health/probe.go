package health

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPCheckerConfig configures an HTTP health probe.
type HTTPCheckerConfig struct {
	// URL is the health endpoint to probe.
	URL string

	// Timeout bounds each probe request.
	// Default: 5 seconds
	Timeout time.Duration

	// Client is the HTTP client used for probes.
	// Default: http.DefaultClient
	Client *http.Client
}

// HTTPChecker probes a dependency's health endpoint over HTTP.
//
// Responses map onto a Status using the conventions mesh services expose
// on their readiness endpoints: a 2xx response whose body is "DEGRADED"
// is degraded, any other 2xx is healthy, 429 is degraded, and everything
// else (including transport errors) is unhealthy.
type HTTPChecker struct {
	name   string
	config HTTPCheckerConfig
}

// NewHTTPChecker creates an HTTP health prober for a dependency.
func NewHTTPChecker(name string, config HTTPCheckerConfig) (*HTTPChecker, error) {
	if config.URL == "" {
		return nil, ErrMissingURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	return &HTTPChecker{name: name, config: config}, nil
}

// Name returns the name of the probed dependency.
func (c *HTTPChecker) Name() string {
	return c.name
}

// Check probes the health endpoint once.
func (c *HTTPChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return Unhealthy("building probe request", err)
	}

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return Unhealthy("probe request failed", err)
	}
	defer resp.Body.Close()

	// Readiness bodies are one word; cap the read regardless.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	details := map[string]any{
		"url":         c.config.URL,
		"status_code": resp.StatusCode,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Degraded("dependency rate limiting").WithDetails(details)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if strings.EqualFold(strings.TrimSpace(string(body)), "DEGRADED") {
			return Degraded("dependency reports degraded").WithDetails(details)
		}
		return Healthy("dependency reachable").WithDetails(details)
	default:
		return Unhealthy("unexpected probe status", ErrCheckFailed).WithDetails(details)
	}
}

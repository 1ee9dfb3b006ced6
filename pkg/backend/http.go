package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is used when no backend URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// HTTPSource talks to the backend over HTTP/JSON.
//
// Example:
//
//	src := &HTTPSource{
//	    BaseURL: "http://trainer:8000",
//	    Limiter: rate.NewLimiter(rate.Limit(20), 20),
//	}
//	runs, err := src.Runs(ctx)
type HTTPSource struct {
	// BaseURL is the backend root, e.g. http://localhost:8000 (required).
	BaseURL string

	// HTTPClient is optional; if nil a client without a timeout is used, so a
	// slow fetch only delays its own update.
	HTTPClient *http.Client

	// Limiter is optional; when set every request waits for a token. It is
	// shared by all views so the backend sees a bounded request rate.
	Limiter *rate.Limiter
}

// NewHTTPSource validates baseURL and returns a source for it.
func NewHTTPSource(baseURL string, client *http.Client, limiter *rate.Limiter) (*HTTPSource, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	return &HTTPSource{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: client,
		Limiter:    limiter,
	}, nil
}

// Results implements Source.
func (s *HTTPSource) Results(ctx context.Context) (Results, error) {
	body, err := s.get(ctx, "/results")
	if err != nil {
		return Results{}, err
	}
	return ParseResults("", body)
}

// Runs implements Source.
func (s *HTTPSource) Runs(ctx context.Context) ([]RunSummary, error) {
	body, err := s.get(ctx, "/runs")
	if err != nil {
		return nil, err
	}
	return ParseRuns(body)
}

// RunResults implements Source.
func (s *HTTPSource) RunResults(ctx context.Context, run string) (Results, error) {
	if run == "" {
		return Results{}, errors.New("run identifier required")
	}
	body, err := s.get(ctx, "/results/"+url.PathEscape(run))
	if err != nil {
		return Results{}, err
	}
	return ParseResults(run, body)
}

func (s *HTTPSource) get(ctx context.Context, path string) ([]byte, error) {
	if s.BaseURL == "" {
		return nil, errors.New("backend: BaseURL is required")
	}

	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	cli := s.HTTPClient
	if cli == nil {
		cli = &http.Client{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("GET %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("GET %s: http status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of the same size. rps <= 0 disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/utils/clock"

	"wakeproxy/logging"
)

// ErrNotReady is wrapped by every readiness timeout.
var ErrNotReady = errors.New("backend did not become ready")

// TimeoutError reports that a URL never answered within the budget.
type TimeoutError struct {
	URL      string
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s did not become ready within %s (%d attempts)", e.URL, e.Timeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return ErrNotReady }

// IsReadyStatus is the readiness predicate: any answer below 500 proves the
// network path and process are up, even an application error page.
func IsReadyStatus(code int) bool {
	return code >= 200 && code < 500
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober polls backend URLs for readiness.
type Prober struct {
	client         Doer
	clock          clock.Clock
	attemptTimeout time.Duration
}

// NewProber creates a prober whose individual attempts time out after attemptTimeout.
func NewProber(clk clock.Clock, attemptTimeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are answers too; report them instead of following.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		clock:          clk,
		attemptTimeout: attemptTimeout,
	}
}

// WithClient swaps the HTTP client, mainly for tests.
func (p *Prober) WithClient(c Doer) *Prober {
	p.client = c
	return p
}

// Ready performs a single readiness attempt.
func (p *Prober) Ready(ctx context.Context, url string) bool {
	code, err := p.attempt(ctx, url)
	return err == nil && IsReadyStatus(code)
}

// WaitUntilReady polls url every interval until it answers with a ready
// status or timeout has elapsed. Individual request errors are expected while
// a backend boots and are ignored. The timeout is returned as *TimeoutError.
func (p *Prober) WaitUntilReady(ctx context.Context, url string, timeout, interval time.Duration) error {
	start := p.clock.Now()
	attempts := 0

	for p.clock.Since(start) < timeout {
		attempts++
		code, err := p.attempt(ctx, url)
		switch {
		case err != nil:
			logging.Debug("Health", "Probe %d of %s failed: %v", attempts, url, err)
		case IsReadyStatus(code):
			logging.Info("Health", "%s is ready (status %d after %d attempts)", url, code, attempts)
			return nil
		default:
			logging.Debug("Health", "Probe %d of %s returned %d", attempts, url, code)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(interval):
		}
	}

	return &TimeoutError{URL: url, Timeout: timeout, Attempts: attempts}
}

func (p *Prober) attempt(ctx context.Context, url string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

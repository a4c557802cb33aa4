package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/metrics"
	"wakeproxy/types"
)

// DefaultMaxReplayBody is how much of a request body is buffered so the
// request can be replayed after a wake.
const DefaultMaxReplayBody int64 = 1 << 20

// Waker starts a route's backend on demand.
type Waker interface {
	Wake(ctx context.Context, route string) (types.WakeOutcome, error)
}

// AccessRecorder records successful requests for a route.
type AccessRecorder interface {
	Touch(route string) error
}

// Options configure how routes are matched.
type Options struct {
	PathPrefix    string // first path segment, e.g. "proxy"
	Domain        string // when set, <route>.<Domain> also selects a route
	MaxReplayBody int64
}

type ctxKey int

const (
	matchKey ctxKey = iota
	attemptKey
)

// match is the route selected for an inbound request.
type match struct {
	route  string
	prefix string // stripped from the path before forwarding; empty for host routing
}

// attempt carries a transport failure out of the ErrorHandler so the handler
// can decide whether to wake and retry.
type attempt struct {
	err error
}

// ReverseProxyHandler routes requests to route backends, waking a backend
// when it cannot be reached.
type ReverseProxyHandler struct {
	waker         Waker
	tracker       AccessRecorder
	maxReplayBody int64

	proxies map[string]*httputil.ReverseProxy
	router  *mux.Router
}

// NewReverseProxyHandler creates a new ReverseProxyHandler. Targets are
// validated by config, so a parse failure here is a programming error.
func NewReverseProxyHandler(sm *manager.StateManager, waker Waker, tracker AccessRecorder, opts Options) (*ReverseProxyHandler, error) {
	if opts.PathPrefix == "" {
		opts.PathPrefix = "proxy"
	}
	if opts.MaxReplayBody <= 0 {
		opts.MaxReplayBody = DefaultMaxReplayBody
	}

	h := &ReverseProxyHandler{
		waker:         waker,
		tracker:       tracker,
		maxReplayBody: opts.MaxReplayBody,
		proxies:       make(map[string]*httputil.ReverseProxy),
	}

	for _, rc := range sm.Routes() {
		target, err := url.Parse(rc.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to parse target for route '%s': %w", rc.Route, err)
		}
		h.proxies[rc.Route] = h.newRouteProxy(rc.Route, target)
	}

	h.router = mux.NewRouter()
	h.router.SkipClean(true)
	if opts.Domain != "" {
		domain := strings.ToLower(opts.Domain)
		h.router.MatcherFunc(h.knownSubdomain(domain)).HandlerFunc(h.serveHostRoute(domain))
	}
	h.router.PathPrefix("/" + opts.PathPrefix + "/{route}").HandlerFunc(h.servePathRoute(opts.PathPrefix))
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Route not found", http.StatusNotFound)
	})

	return h, nil
}

func (h *ReverseProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *ReverseProxyHandler) serveHostRoute(domain string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route, _ := subdomain(r.Host, domain)
		h.dispatch(w, r, match{route: route})
	}
}

// knownSubdomain lets requests for unknown subdomains fall through to path routing.
func (h *ReverseProxyHandler) knownSubdomain(domain string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		sub, ok := subdomain(r.Host, domain)
		if !ok {
			return false
		}
		_, ok = h.proxies[sub]
		return ok
	}
}

// subdomain returns the lowercased label in front of domain, ignoring any port.
func subdomain(host, domain string) (string, bool) {
	if i := strings.LastIndex(host, ":"); i > strings.LastIndex(host, "]") {
		host = host[:i]
	}
	return strings.CutSuffix(strings.ToLower(host), "."+domain)
}

func (h *ReverseProxyHandler) servePathRoute(pathPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := mux.Vars(r)["route"]
		h.dispatch(w, r, match{route: route, prefix: "/" + pathPrefix + "/" + route})
	}
}

func (h *ReverseProxyHandler) dispatch(w http.ResponseWriter, r *http.Request, m match) {
	rp, ok := h.proxies[m.route]
	if !ok {
		http.Error(w, fmt.Sprintf("Route '%s' not found", m.route), http.StatusNotFound)
		return
	}

	replayable := h.bufferBody(r)

	first := &attempt{}
	rp.ServeHTTP(w, h.withAttempt(r, m, first))
	if first.err == nil {
		return
	}

	if r.Context().Err() != nil {
		logging.Debug("Proxy", "Client went away for route '%s', not waking.", m.route)
		return
	}

	logging.Info("Proxy", "Backend for route '%s' unreachable (%v). Waking...", m.route, first.err)
	outcome, err := h.waker.Wake(r.Context(), m.route)
	switch outcome {
	case types.WakeCooldown:
		h.unavailable(w, m.route, "cooldown", "Try again in a few seconds.")
		return
	case types.WakeStarted, types.WakeAlreadyUp:
	default:
		if r.Context().Err() != nil {
			return
		}
		logging.Error("Proxy", err, "Wake failed for route '%s'", m.route)
		h.unavailable(w, m.route, "wake_failed", "Try again shortly.")
		return
	}

	if !replayable {
		logging.Warn("Proxy", "Route '%s' is up but the request body was too large to replay.", m.route)
		h.unavailable(w, m.route, "body_not_replayable", "Try again shortly.")
		return
	}

	retry := &attempt{}
	rp.ServeHTTP(w, h.withAttempt(h.rewind(r), m, retry))
	if retry.err != nil && r.Context().Err() == nil {
		logging.Error("Proxy", retry.err, "Retry after wake failed for route '%s'", m.route)
		h.unavailable(w, m.route, "retry_failed", "Try again shortly.")
	}
}

func (h *ReverseProxyHandler) newRouteProxy(route string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if m, ok := pr.In.Context().Value(matchKey).(match); ok && m.prefix != "" {
				pr.Out.URL.Path = stripPrefix(pr.In.URL.Path, m.prefix)
				if pr.In.URL.RawPath != "" {
					pr.Out.URL.RawPath = stripPrefix(pr.In.URL.RawPath, m.prefix)
				}
			}
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			metrics.RecordProxiedResponse(route, resp.StatusCode)
			if resp.StatusCode >= 200 && resp.StatusCode < 400 {
				if err := h.tracker.Touch(route); err != nil {
					logging.Error("Proxy", err, "Failed to record access for route '%s'", route)
				}
			}
			return nil
		},
		ErrorHandler: func(_ http.ResponseWriter, r *http.Request, err error) {
			if a, ok := r.Context().Value(attemptKey).(*attempt); ok {
				a.err = err
			}
		},
	}
}

func (h *ReverseProxyHandler) withAttempt(r *http.Request, m match, a *attempt) *http.Request {
	ctx := context.WithValue(r.Context(), matchKey, m)
	ctx = context.WithValue(ctx, attemptKey, a)
	return r.WithContext(ctx)
}

// bufferBody reads up to maxReplayBody of the request body into memory so it
// can be sent twice. Larger bodies are streamed once and reported as not
// replayable.
func (h *ReverseProxyHandler) bufferBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	if r.ContentLength > h.maxReplayBody {
		return false
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, h.maxReplayBody+1))
	if err != nil && !errors.Is(err, io.EOF) {
		// Stream what was read plus the rest; the failure will surface upstream.
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
		return false
	}
	if int64(len(buf)) > h.maxReplayBody {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
		return false
	}

	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return true
}

func (h *ReverseProxyHandler) rewind(r *http.Request) *http.Request {
	if r.GetBody == nil {
		return r
	}
	body, err := r.GetBody()
	if err != nil {
		return r
	}
	out := r.Clone(r.Context())
	out.Body = body
	return out
}

func (h *ReverseProxyHandler) unavailable(w http.ResponseWriter, route, reason, hint string) {
	metrics.RecordUnavailable(route, reason)
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, "<h1>%s is starting up. %s</h1>", route, hint)
}

func stripPrefix(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

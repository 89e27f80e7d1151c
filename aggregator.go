// Package aggproxy wires the URL-Pattern Matcher, Endpoint Expander,
// Fan-Out Dispatcher, and Reduction Selector into a single http.Handler.
package aggproxy

import (
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cention/aggproxy/internal/aggerrors"
	"github.com/cention/aggproxy/internal/config"
	"github.com/cention/aggproxy/internal/dispatch"
	"github.com/cention/aggproxy/internal/expand"
	"github.com/cention/aggproxy/internal/logging"
	"github.com/cention/aggproxy/internal/matcher"
	"github.com/cention/aggproxy/internal/reduce"
)

// compiledRoute is one config.Route with its URL patterns pre-compiled.
type compiledRoute struct {
	table          *matcher.Table
	endpoints      map[string]string
	priorityErrors []int
}

// routeSet is the full, immutable, compiled route table for one config
// generation. It is swapped atomically on reload (see Pipeline.Reload).
type routeSet struct {
	routes []compiledRoute
}

func compileRoutes(cfg *config.Config) (*routeSet, error) {
	routes := make([]compiledRoute, len(cfg.Routes))
	for i, r := range cfg.Routes {
		table, err := matcher.Compile(r.URLPatterns)
		if err != nil {
			return nil, err
		}
		routes[i] = compiledRoute{
			table:          table,
			endpoints:      r.NormalizedEndpoints(),
			priorityErrors: r.PriorityErrors,
		}
	}
	return &routeSet{routes: routes}, nil
}

// match finds the first pattern, across all routes in configuration order,
// that matches the given URL (spec §4.1: ties resolved by configuration
// order).
func (rs *routeSet) match(url string) (matcher.Pattern, string, compiledRoute, bool) {
	for _, route := range rs.routes {
		if p, captured, ok := route.table.Match(url); ok {
			return p, captured, route, true
		}
	}
	return matcher.Pattern{}, "", compiledRoute{}, false
}

// matches reports whether url matches any configured route, without
// resolving which pattern or route matched.
func (rs *routeSet) matches(url string) bool {
	for _, route := range rs.routes {
		if route.table.Matches(url) {
			return true
		}
	}
	return false
}

// Pipeline is the core aggregation pipeline: an http.Handler that matches,
// expands, dispatches, and reduces every inbound request.
type Pipeline struct {
	routes     atomic.Pointer[routeSet]
	dispatcher *dispatch.Dispatcher
}

// NewPipeline compiles cfg and builds a Pipeline that dispatches backend
// requests over the given transport (nil selects dispatch.DefaultTransport).
func NewPipeline(cfg *config.Config, transport http.RoundTripper) (*Pipeline, error) {
	rs, err := compileRoutes(cfg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{dispatcher: dispatch.New(transport)}
	p.routes.Store(rs)
	return p, nil
}

// Reload recompiles cfg and atomically swaps it in, so in-flight requests
// keep using the route table they started with.
func (p *Pipeline) Reload(cfg *config.Config) error {
	rs, err := compileRoutes(cfg)
	if err != nil {
		return err
	}
	p.routes.Store(rs)
	return nil
}

// MatchesRoute reports whether url would match a configured route, without
// dispatching anything. Used by the CLI's configuration dry-run check.
func (p *Pipeline) MatchesRoute(url string) bool {
	return p.routes.Load().matches(url)
}

// requestURL reconstructs the absolute URL the matcher and expander operate
// on (spec §6's pattern examples are absolute URLs, e.g.
// "https://proxy.example.com/v1/{Endpoint_IDs}/items").
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// ServeHTTP implements the full pipeline. Per spec §7, every failure is
// reified into the outbound response; a recovered panic becomes ErrInternal
// rather than crossing the HTTP boundary.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	reqLog := logging.RequestLogger(requestID)

	defer func() {
		if rec := recover(); rec != nil {
			reqLog.Error("pipeline panic recovered", zap.Any("panic", rec))
			aggerrors.ErrInternal.WithRequestID(requestID).WriteJSON(w)
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		aggerrors.Wrap(err, http.StatusBadRequest, "failed to read request body").
			WithRequestID(requestID).WriteJSON(w)
		return
	}

	reqURL := requestURL(r)
	rs := p.routes.Load()
	pattern, captured, route, ok := rs.match(reqURL)
	if !ok {
		aggerrors.ErrNoRoute.WithRequestID(requestID).WithDetails(reqURL).WriteJSON(w)
		return
	}

	targets, err := expand.Expand(reqURL, pattern, captured, route.endpoints)
	if err != nil {
		if ae, isAggErr := aggerrors.As(err); isAggErr {
			ae.WithRequestID(requestID).WriteJSON(w)
			return
		}
		aggerrors.Wrap(err, http.StatusNotFound, "endpoint expansion failed").
			WithRequestID(requestID).WriteJSON(w)
		return
	}

	inbound := dispatch.Inbound{Method: r.Method, Header: r.Header, Body: body}
	results, transportErrs := p.dispatcher.Dispatch(r.Context(), inbound, targets)
	if transportErrs != nil {
		reqLog.Error("backend transport failures", zap.Any("errors", transportErrs))
	}

	info := reduce.RequestInfo{
		Method:              r.Method,
		Accept:              r.Header.Get("Accept"),
		ProxyAggregatorBody: r.Header.Get(reduce.ProxyAggregatorBodyHeader),
	}
	out := reduce.Reduce(info, results, route.priorityErrors)

	reqLog.Info("request reduced",
		zap.String("pattern", pattern.Literal),
		zap.Int("backends", len(targets)),
		zap.Int("status", out.Status),
	)

	for key, values := range out.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(out.Status)
	w.Write(out.Body)
}

// Package dispatch implements the Fan-Out Dispatcher (spec §4.3): issue
// every backend request concurrently, rewrite headers the same way for each
// target, never follow redirects, and return a response array whose order
// mirrors the input target order regardless of completion order.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cention/aggproxy/internal/expand"
	"github.com/cention/aggproxy/internal/metrics"
)

// syntheticTransportFailureStatus is the status synthesized for a backend
// that could not be reached at all (spec §4.3's "failure model"): a uniform
// ≥500 code so reducers never have to distinguish "backend said 502" from
// "backend never answered".
const syntheticTransportFailureStatus = 599

// Inbound is the minimal snapshot of the client request the dispatcher
// forwards to each backend.
type Inbound struct {
	Method string
	Header http.Header
	Body   []byte
}

// Result is one backend's outcome. A Synthetic result represents a
// transport-level failure (spec §4.3's failure model) rather than an actual
// HTTP response from the backend.
type Result struct {
	EndpointID string
	URL        string
	Status     int
	Header     http.Header
	Body       []byte
	Synthetic  bool
	Err        error // only set when Synthetic
}

// Dispatcher issues backend requests concurrently over a shared transport.
type Dispatcher struct {
	client *http.Client
}

// New creates a Dispatcher. Redirects are never followed (spec §4.3): the
// client returns http.ErrUseLastResponse from CheckRedirect so the 3xx
// response itself is handed back, exactly as a backend emitted it.
func New(transport http.RoundTripper) *Dispatcher {
	if transport == nil {
		transport = DefaultTransport()
	}
	return &Dispatcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Dispatch fans inbound out to every target concurrently and returns one
// Result per target, in target order, regardless of completion order (spec
// §5). It returns only once every backend has produced a response or a
// transport error. If ctx is cancelled (client disconnect or deadline),
// outstanding requests are cancelled and their partial bodies discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, inbound Inbound, targets []expand.Target) ([]Result, error) {
	results := make([]Result, len(targets))

	// group's derived context only cancels on ctx's own cancellation (client
	// disconnect, deadline): every goroutine below returns nil regardless of
	// its backend's outcome, so one backend's transport failure can never
	// cancel its siblings. Errors are collected out-of-band in transportErrs.
	group, groupCtx := errgroup.WithContext(ctx)
	var transportErrs error
	var mu sync.Mutex

	for i, target := range targets {
		i, target := i, target
		group.Go(func() error {
			start := time.Now()
			res := d.call(groupCtx, inbound, target)
			metrics.BackendDuration.WithLabelValues(target.EndpointID).Observe(time.Since(start).Seconds())
			metrics.BackendRequestsTotal.WithLabelValues(target.EndpointID, metrics.StatusClass(res.Status)).Inc()
			results[i] = res
			if res.Synthetic {
				mu.Lock()
				transportErrs = multierror.Append(transportErrs, res.Err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = group.Wait()

	metrics.FanoutWidth.Observe(float64(len(targets)))

	return results, transportErrs
}

func (d *Dispatcher) call(ctx context.Context, inbound Inbound, target expand.Target) Result {
	req, err := http.NewRequestWithContext(ctx, inbound.Method, target.URL, bytes.NewReader(inbound.Body))
	if err != nil {
		return Result{
			EndpointID: target.EndpointID,
			URL:        target.URL,
			Status:     syntheticTransportFailureStatus,
			Synthetic:  true,
			Err:        err,
		}
	}
	req.Header = rewriteHeaders(inbound.Header)

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{
			EndpointID: target.EndpointID,
			URL:        target.URL,
			Status:     syntheticTransportFailureStatus,
			Synthetic:  true,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{
			EndpointID: target.EndpointID,
			URL:        target.URL,
			Status:     syntheticTransportFailureStatus,
			Synthetic:  true,
			Err:        err,
		}
	}

	return Result{
		EndpointID: target.EndpointID,
		URL:        target.URL,
		Status:     resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
}

// rewriteHeaders clones the inbound headers with the two mutations spec
// §4.3 requires: force gzip-or-identity encoding (the reducer decompresses
// when merging) and strip Host so the transport sets it per target.
func rewriteHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	out.Set("Accept-Encoding", "gzip,identity")
	out.Del("Host")
	return out
}

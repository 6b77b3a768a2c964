// Package performance hosts load-test scenarios: virtual users, their
// HTTP client and the check API used by iteration functions.
package performance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IterationFunc is the body of a scenario, run once per iteration.
//
// It reports through the VU: requests made with vu.Get and checks made
// with vu.Check are recorded as metrics. Failures are never returned;
// a failed request or check only lowers the corresponding rates.
type IterationFunc func(ctx context.Context, vu *VirtualUser)

// VirtualUser is a logical worker that runs iterations one at a time.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	// HTTP client (shared across VUs for connection pooling)
	HTTPClient *http.Client

	// Metrics engine for recording results
	Metrics *metrics.Engine

	state     atomic.Int32
	iteration atomic.Int64
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, httpClient *http.Client, metricsEngine *metrics.Engine) *VirtualUser {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VirtualUser{
		ID:         id,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns how many iterations this VU has started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration runs fn once and records the iteration.
//
// A panic inside fn is recovered and the iteration is recorded as
// interrupted, as is an iteration whose context ended before fn returned.
// The returned error reports those two cases; it is informational only.
func (vu *VirtualUser) RunIteration(ctx context.Context, fn IterationFunc) (err error) {
	if s := vu.GetState(); s == VUStateStopping || s == VUStateStopped {
		return fmt.Errorf("VU %d is %s", vu.ID, s)
	}

	vu.state.Store(int32(VUStateRunning))
	vu.iteration.Add(1)
	start := time.Now()

	defer func() {
		interrupted := false
		if r := recover(); r != nil {
			interrupted = true
			err = fmt.Errorf("VU %d iteration %d panicked: %v", vu.ID, vu.iteration.Load(), r)
		} else if ctx.Err() != nil {
			interrupted = true
			err = ctx.Err()
		}

		vu.Metrics.RecordIteration(time.Since(start), interrupted)
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	}()

	fn(ctx, vu)
	return nil
}

// RequestStop marks the VU as stopping; it finishes its current iteration
// but will not start another.
func (vu *VirtualUser) RequestStop() {
	for {
		cur := vu.state.Load()
		if VUState(cur) == VUStateStopping || VUState(cur) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(cur, int32(VUStateStopping)) {
			return
		}
	}
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
}

// Get issues an HTTP GET and records it.
//
// Transport errors do not surface as Go errors to the caller: they are
// recorded as failed requests and returned in Response.Error with
// Status 0, so iteration code can keep going.
func (vu *VirtualUser) Get(ctx context.Context, url string) *Response {
	return vu.Request(ctx, http.MethodGet, url, nil)
}

// Request issues an HTTP request with an optional body and records it.
func (vu *VirtualUser) Request(ctx context.Context, method, url string, body io.Reader) *Response {
	res := &Response{Method: method, URL: url}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		res.Error = fmt.Errorf("failed to build request: %w", err)
		vu.Metrics.RecordRequest(0, true, 0)
		return res
	}

	start := time.Now()
	resp, err := vu.HTTPClient.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		res.Error = err
		vu.Metrics.RecordRequest(res.Duration, true, 0)
		return res
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode
	res.Header = resp.Header
	res.Body = b
	if err != nil {
		res.Error = fmt.Errorf("failed to read response body: %w", err)
	}

	vu.Metrics.RecordRequest(res.Duration, res.Failed(), int64(len(b)))
	return res
}

// Check evaluates each check against res in order, records every outcome
// and reports whether all of them passed. A failing check never stops the
// remaining ones from running.
func (vu *VirtualUser) Check(res *Response, checks ...Check) bool {
	all := true
	for _, c := range checks {
		ok := c.evaluate(res)
		vu.Metrics.RecordCheck(c.Name, ok)
		if !ok {
			all = false
		}
	}
	return all
}

package performance

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
)

// VUScheduler owns the virtual users of one scenario and the HTTP client
// they share.
type VUScheduler struct {
	metrics *metrics.Engine

	httpClientConfig HTTPClientConfig
	client           *http.Client

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// Transport overrides the generated transport (tests, custom dialers)
	Transport http.RoundTripper
}

// DefaultHTTPClientConfig returns the engine defaults: a 60s request
// timeout and keep-alive pooling.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             60 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewVUScheduler creates a scheduler whose VUs record into metricsEngine.
func NewVUScheduler(metricsEngine *metrics.Engine, httpConfig HTTPClientConfig) *VUScheduler {
	s := &VUScheduler{
		metrics:          metricsEngine,
		httpClientConfig: httpConfig,
		vus:              make(map[int]*VirtualUser),
	}
	s.client = s.createHTTPClient()
	return s
}

func (s *VUScheduler) createHTTPClient() *http.Client {
	transport := s.httpClientConfig.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        s.httpClientConfig.MaxIdleConns,
			MaxIdleConnsPerHost: s.httpClientConfig.MaxIdleConnsPerHost,
			IdleConnTimeout:     s.httpClientConfig.IdleConnTimeout,
			DisableKeepAlives:   s.httpClientConfig.DisableKeepAlives,
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   s.httpClientConfig.Timeout,
	}
}

// SpawnVU creates and registers a new VU.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.client, s.metrics)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// StopAllVUs requests all VUs to stop after their current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Shutdown marks every VU stopped and releases pooled connections.
// Executors call it once all iterations have returned.
func (s *VUScheduler) Shutdown() {
	s.vusMu.RLock()
	for _, vu := range s.vus {
		vu.MarkStopped()
	}
	s.vusMu.RUnlock()

	s.client.CloseIdleConnections()
}

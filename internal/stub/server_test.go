package stub

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHello(t *testing.T) {
	s := New(Config{}, nil)
	h := s.Router()

	rec := get(t, h, "/hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello world", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = get(t, h, "/hello?name=friend")
	assert.Equal(t, "Hello friend", rec.Body.String())

	assert.Equal(t, 2.0, testutil.ToFloat64(s.requests.WithLabelValues("200")))
}

func TestHello_MethodNotAllowed(t *testing.T) {
	h := New(Config{}, nil).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hello", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/goodbye").Code)
}

func TestHello_Latency(t *testing.T) {
	h := New(Config{Latency: 50 * time.Millisecond}, nil).Router()

	start := time.Now()
	rec := get(t, h, "/hello")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, "Hello world", rec.Body.String())
}

func TestInternalRoutes_SharedRouter(t *testing.T) {
	s := New(Config{}, nil)
	h := s.Router()

	get(t, h, "/hello")

	assert.Equal(t, http.StatusOK, get(t, h, "/internal/status").Code)

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hello_requests_total{status="200"} 1`)
}

func TestInternalRoutes_SeparateRouter(t *testing.T) {
	s := New(Config{InternalAddr: "127.0.0.1:0"}, nil)

	assert.Equal(t, http.StatusNotFound, get(t, s.Router(), "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, s.InternalRouter(), "/internal/status").Code)
	assert.Equal(t, http.StatusOK, get(t, s.InternalRouter(), "/metrics").Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/hello")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "Hello world", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenAndServe_BadAddr(t *testing.T) {
	err := New(Config{Addr: "not-an-address"}, nil).ListenAndServe(context.Background())
	assert.Error(t, err)
}

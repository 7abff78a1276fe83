package middleware

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chatrelay/internal/metrics"
	"chatrelay/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservabilityMiddleware(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logBuffer)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	var seenRequestID string
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = tracing.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	})

	wrappedHandler := ObservabilityMiddleware(logger, false)(testHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, seenRequestID)
	assert.True(t, strings.HasPrefix(seenRequestID, "req_"))
	assert.Equal(t, seenRequestID, w.Header().Get(RequestIDHeader))

	snapshot := metrics.GetSnapshot()
	assert.Contains(t, snapshot.Counters, "http_requests_total_endpoint:/test_method:GET")
	assert.Contains(t, snapshot.Timers, "http_request_duration_endpoint:/test_method:GET")

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "HTTP request started")
	assert.Contains(t, logOutput, "HTTP request completed")
	assert.Contains(t, logOutput, `"request_id":"`+seenRequestID+`"`)
	assert.Contains(t, logOutput, `"remote_ip":"192.168.1.100"`)
}

func TestObservabilityMiddleware_ReusesIncomingRequestID(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	var seen string
	handler := ObservabilityMiddleware(logger, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req_upstream")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req_upstream", seen)
	assert.Equal(t, "req_upstream", w.Header().Get(RequestIDHeader))
}

func TestObservabilityMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusInternalServerError, `"level":"error"`},
		{http.StatusNotFound, `"level":"warning"`},
		{http.StatusOK, `"level":"info"`},
	}

	for _, tt := range tests {
		var logBuffer bytes.Buffer
		logger := logrus.New()
		logger.SetOutput(&logBuffer)
		logger.SetFormatter(&logrus.JSONFormatter{})

		handler := ObservabilityMiddleware(logger, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/error", nil))

		assert.Equal(t, tt.status, w.Code)
		assert.Contains(t, logBuffer.String(), tt.level, "status %d", tt.status)
	}
}

func TestObservabilityMiddleware_UsesRouteTemplate(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(logger, false))
	router.HandleFunc("/api/users/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	for _, id := range []string{"u1", "u2", "u3"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	snapshot := metrics.GetSnapshot()
	counter, ok := snapshot.Counters["http_requests_total_endpoint:/api/users/{userId}_method:GET"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, counter.Value, float64(3))
	assert.NotContains(t, snapshot.Counters, "http_requests_total_endpoint:/api/users/u1_method:GET")
}

func TestResponseWrapper(t *testing.T) {
	w := httptest.NewRecorder()
	wrapper := &responseWrapper{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}

	wrapper.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, wrapper.statusCode)

	// A second WriteHeader does not change the recorded status.
	wrapper.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusCreated, wrapper.statusCode)

	data := []byte("test response data")
	n, err := wrapper.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	_, err = wrapper.Write([]byte(" more data"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)+len(" more data")), wrapper.responseSize)

	assert.Equal(t, w, wrapper.Unwrap())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWrapper_Hijack(t *testing.T) {
	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	wrapper := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _, err := wrapper.Hijack()
	require.NoError(t, err)
	assert.True(t, rec.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, wrapper.statusCode)

	plain := &responseWrapper{ResponseWriter: httptest.NewRecorder()}
	_, _, err = plain.Hijack()
	assert.Error(t, err)
}

func TestMiddleware_ConcurrentRequests(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	handler := ObservabilityMiddleware(logger, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := metrics.GetSnapshot().Counters["http_requests_total_endpoint:/concurrent_method:GET"].Value

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/concurrent", nil))
		}()
	}
	wg.Wait()

	after := metrics.GetSnapshot().Counters["http_requests_total_endpoint:/concurrent_method:GET"].Value
	assert.Equal(t, float64(10), after-before)
}

func TestLevelForStatus(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, levelForStatus(http.StatusOK))
	assert.Equal(t, logrus.InfoLevel, levelForStatus(http.StatusSwitchingProtocols))
	assert.Equal(t, logrus.WarnLevel, levelForStatus(http.StatusNotFound))
	assert.Equal(t, logrus.ErrorLevel, levelForStatus(http.StatusServiceUnavailable))
}

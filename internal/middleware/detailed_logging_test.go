package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func debugLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestDetailedLoggingMiddleware_DefaultConfig(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := debugLogger(&logBuffer)

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(`{"email":"a@b.io","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Detailed request logging")
	assert.Contains(t, logOutput, "***MASKED***")
	assert.Contains(t, logOutput, "request_headers")
	assert.NotContains(t, logOutput, "secret-token")
	assert.NotContains(t, logOutput, "request_body")
	assert.NotContains(t, logOutput, "Detailed response logging")
}

func TestDetailedLoggingMiddleware_FullLoggingMasksBodies(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := debugLogger(&logBuffer)

	config := DetailedLoggingConfig{
		LogRequestHeaders:  true,
		LogResponseHeaders: true,
		LogRequestBody:     true,
		LogResponseBody:    true,
		MaxBodySize:        1024,
		SensitiveHeaders:   []string{"authorization"},
	}

	var bodySeenByHandler string
	handler := DetailedLoggingMiddleware(logger, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		bodySeenByHandler = buf.String()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"user":{"id":"64f1c2a9e3","email":"alice@example.com"},"token":"jwt.value.here"}`))
	}))

	requestBody := `{"fullName":"Alice","email":"alice@example.com","password":"hunter22"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader(requestBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, requestBody, bodySeenByHandler, "handler must still see the full body")

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Detailed response logging")
	assert.Contains(t, logOutput, "request_body")
	assert.Contains(t, logOutput, "response_body")
	assert.Contains(t, logOutput, "response_headers")
	assert.Contains(t, logOutput, "a****@example.com")
	assert.Contains(t, logOutput, `"status_code":201`)
	assert.NotContains(t, logOutput, "hunter22")
	assert.NotContains(t, logOutput, "jwt.value.here")
	assert.NotContains(t, logOutput, "alice@example.com")
}

func TestDetailedLoggingMiddleware_SkipsWhenNotDebug(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := debugLogger(&logBuffer)
	logger.SetLevel(logrus.InfoLevel)

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/u1", nil))

	assert.Empty(t, logBuffer.String())
}

func TestDetailedLoggingMiddleware_SkipEndpoints(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := debugLogger(&logBuffer)

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/metrics", "/health", "/ws"} {
		logBuffer.Reset()
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, logBuffer.String(), "Detailed request logging", "path %s", path)
	}
}

func TestDetailedLoggingMiddleware_LargeResponseTruncated(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := debugLogger(&logBuffer)

	config := DetailedLoggingConfig{LogResponseBody: true, MaxBodySize: 16}
	handler := DetailedLoggingMiddleware(logger, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/message/c1", nil))

	assert.Contains(t, logBuffer.String(), "***TRUNCATED***")
}

func TestMaskBody(t *testing.T) {
	masked := maskBody([]byte(`[{"user":{"email":"bob@example.com"},"message":"hello"}]`))
	items, ok := masked.([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("expected one masked item, got %#v", masked)
	}
	item := items[0].(map[string]interface{})
	assert.Equal(t, "[5 chars]", item["message"])
	assert.Equal(t, "b**@example.com", item["user"].(map[string]interface{})["email"])

	assert.Equal(t, "[8 chars]", maskBody([]byte("not json")))
}

func TestIsSensitiveHeader(t *testing.T) {
	sensitiveHeaders := []string{"authorization", "cookie"}

	tests := []struct {
		header   string
		expected bool
	}{
		{"Authorization", true},
		{"AUTHORIZATION", true},
		{"Cookie", true},
		{"Content-Type", false},
		{"User-Agent", false},
	}

	for _, test := range tests {
		if got := isSensitiveHeader(test.header, sensitiveHeaders); got != test.expected {
			t.Errorf("isSensitiveHeader(%q) = %v, expected %v", test.header, got, test.expected)
		}
	}
}

func TestShouldLogBody(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"text/plain", true},
		{"application/octet-stream", false},
		{"image/jpeg", false},
		{"", false},
	}

	for _, test := range tests {
		if got := shouldLogBody(test.contentType); got != test.expected {
			t.Errorf("shouldLogBody(%q) = %v, expected %v", test.contentType, got, test.expected)
		}
	}
}

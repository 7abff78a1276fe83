package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatrelay/internal/privacy"
	"chatrelay/internal/service"
	"chatrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

const maskedValue = "***MASKED***"

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool     `json:"log_request_headers"`
	LogResponseHeaders bool     `json:"log_response_headers"`
	LogRequestBody     bool     `json:"log_request_body"`
	LogResponseBody    bool     `json:"log_response_body"`
	MaxBodySize        int      `json:"max_body_size"`
	SensitiveHeaders   []string `json:"sensitive_headers"`
	SkipEndpoints      []string `json:"skip_endpoints"`
}

// DefaultDetailedLoggingConfig logs request headers only.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       1024,
		SensitiveHeaders: []string{
			"authorization", "cookie", "set-cookie", "sec-websocket-key",
		},
		SkipEndpoints: []string{
			"/metrics", "/health", "/ws",
		},
	}
}

// DetailedLoggingMiddleware logs request and response details at debug level.
// JSON bodies are masked field by field so passwords, tokens, emails and
// message text never reach the log.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipPath(r.URL.Path, config.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			requestInfo := tracing.GetRequestInfo(r.Context())
			logRequestDetails(logger, r, requestInfo, config)

			if !config.LogResponseBody && !config.LogResponseHeaders {
				next.ServeHTTP(w, r)
				return
			}

			capture := &responseCaptureWrapper{
				ResponseWriter: w,
				body:           bytes.NewBuffer(nil),
				headers:        make(http.Header),
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(capture, r)
			logResponseDetails(logger, capture, requestInfo, config)
		})
	}
}

func skipPath(path string, skip []string) bool {
	for _, s := range skip {
		if path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
	}
	return false
}

func logRequestDetails(logger *logrus.Logger, r *http.Request, requestInfo tracing.RequestInfo, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID: requestInfo.RequestID,
		service.LogFieldTraceID:   requestInfo.TraceID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.Path,
		"content_length":          r.ContentLength,
		"protocol":                r.Proto,
	}

	if config.LogRequestHeaders {
		fields["request_headers"] = maskHeaders(r.Header, config.SensitiveHeaders)
	}

	if config.LogRequestBody && shouldLogBody(r.Header.Get("Content-Type")) &&
		r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			fields["request_body"] = maskBody(body)
		}
	}

	logger.WithFields(fields).Debug("Detailed request logging")
}

func logResponseDetails(logger *logrus.Logger, capture *responseCaptureWrapper, requestInfo tracing.RequestInfo, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID:  requestInfo.RequestID,
		service.LogFieldTraceID:    requestInfo.TraceID,
		service.LogFieldStatusCode: capture.statusCode,
		service.LogFieldSize:       capture.body.Len(),
	}

	if config.LogResponseHeaders {
		fields["response_headers"] = maskHeaders(capture.headers, config.SensitiveHeaders)
	}

	if config.LogResponseBody && capture.body.Len() > 0 {
		if capture.body.Len() <= config.MaxBodySize {
			fields["response_body"] = maskBody(capture.body.Bytes())
		} else {
			fields["response_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", capture.body.Len())
		}
	}

	logger.WithFields(fields).Debug("Detailed response logging")
}

func maskHeaders(header http.Header, sensitive []string) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		if isSensitiveHeader(name, sensitive) {
			out[name] = maskedValue
		} else {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

// maskBody masks known sensitive keys of a JSON object or array of objects.
// Anything that does not parse is replaced by its length.
func maskBody(body []byte) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return privacy.MaskText(string(body))
	}
	return maskJSON(decoded)
}

func maskJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		masked := privacy.MaskSensitiveFields(val)
		for k, inner := range masked {
			switch inner.(type) {
			case map[string]interface{}, []interface{}:
				masked[k] = maskJSON(inner)
			}
		}
		return masked
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = maskJSON(item)
		}
		return out
	default:
		return v
	}
}

// responseCaptureWrapper captures response data for logging
type responseCaptureWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	headers    http.Header
	statusCode int
}

func (rc *responseCaptureWrapper) Write(data []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(data)
	if n > 0 {
		rc.body.Write(data[:n])
	}
	return n, err
}

func (rc *responseCaptureWrapper) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	for name, values := range rc.ResponseWriter.Header() {
		rc.headers[name] = values
	}
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCaptureWrapper) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}

func shouldLogBody(contentType string) bool {
	return strings.Contains(contentType, "application/json") || strings.HasPrefix(contentType, "text/")
}

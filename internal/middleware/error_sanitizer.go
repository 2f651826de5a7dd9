package middleware

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrorSanitizer provides sanitized error responses. Upstream errors can
// embed the full request URL, which carries the channel API key, so
// error text is scrubbed before it reaches a client.
type ErrorSanitizer struct {
	logger *zap.Logger
}

// NewErrorSanitizer creates a new error sanitizer
func NewErrorSanitizer(logger *zap.Logger) *ErrorSanitizer {
	return &ErrorSanitizer{
		logger: logger,
	}
}

var apiKeyPattern = regexp.MustCompile(`(api_key=)[^&\s"]+`)

// SanitizeAndRespond logs the full error server-side and sends a
// scrubbed JSON error to the client.
func (es *ErrorSanitizer) SanitizeAndRespond(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	es.logger.Error("Request error",
		zap.Error(err),
		zap.Int("status_code", statusCode),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":  es.sanitizeErrorMessage(err.Error(), statusCode),
		"status": statusCode,
	}

	json.NewEncoder(w).Encode(response)
}

// sanitizeErrorMessage removes secrets and noise from error messages
func (es *ErrorSanitizer) sanitizeErrorMessage(message string, statusCode int) string {
	sanitized := apiKeyPattern.ReplaceAllString(message, "${1}REDACTED")

	// Drop stack traces and multi-line detail
	if idx := strings.Index(sanitized, "\n"); idx != -1 {
		sanitized = sanitized[:idx]
	}

	// File paths leak deployment layout
	if strings.Contains(sanitized, "/") && !strings.Contains(sanitized, "http") {
		return es.getGenericErrorMessage(statusCode)
	}

	if len(sanitized) > 200 {
		sanitized = sanitized[:200] + "..."
	}

	if len(strings.TrimSpace(sanitized)) < 5 {
		return es.getGenericErrorMessage(statusCode)
	}

	return sanitized
}

// getGenericErrorMessage returns appropriate generic messages based on HTTP status
func (es *ErrorSanitizer) getGenericErrorMessage(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "Invalid request. Please check your input and try again."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusConflict:
		return "The request conflicts with the current state. Please refresh and try again."
	case http.StatusUnprocessableEntity:
		return "The request contains invalid data."
	case http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment and try again."
	case http.StatusBadGateway:
		return "The upstream service is unavailable. Please try again later."
	case http.StatusGatewayTimeout:
		return "The request timed out. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

package model

import "time"

// timestampLayout matches the millisecond ISO-8601 form browsers produce.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in UTC for JSON envelopes.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ErrorBody is the minimal JSON envelope for every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ProxyErrorBody is returned with 502 when the upstream could not be reached.
type ProxyErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

// RateLimitBody is returned with 429 when a client exceeds its quota.
type RateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter string `json:"retryAfter"`
	Timestamp  string `json:"timestamp"`
}

// NotFoundBody is returned with 404 for unmatched routes.
type NotFoundBody struct {
	Error              string   `json:"error"`
	Message            string   `json:"message"`
	AvailableEndpoints []string `json:"availableEndpoints"`
	Timestamp          string   `json:"timestamp"`
}

package biz

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"ShipRelay/internal/model"
)

// ErrorClassifier maps raw transport failures into the closed model.ErrorKind
// taxonomy. Classification drives both retry eligibility and auto-fix
// selection, so every failure leaving the transport passes through here.
type ErrorClassifier struct{}

// NewErrorClassifier creates an error classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify turns an HTTP status code and/or error into a classified APIError.
// Either input may be zero-valued; status takes precedence over message
// patterns. Already-classified errors pass through unchanged.
func (c *ErrorClassifier) Classify(status int, retryAfter string, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	kind := c.kindForStatus(status)
	if kind == model.KindUnknown && err != nil {
		kind = c.kindForError(err)
	}

	out := &model.APIError{
		Kind:       kind,
		StatusCode: status,
		Message:    msg,
		Cause:      err,
	}
	if out.Message == "" {
		out.Message = "request failed"
	}
	if kind == model.KindRateLimited {
		out.RetryAfter = parseRetryAfter(retryAfter)
	}
	return out
}

func (c *ErrorClassifier) kindForStatus(status int) model.ErrorKind {
	switch status {
	case 401:
		return model.KindAuthExpired
	case 403:
		return model.KindPermissionDenied
	case 404:
		return model.KindNotFound
	case 400, 422:
		return model.KindValidation
	case 429:
		return model.KindRateLimited
	case 502, 503, 504:
		return model.KindServiceDown
	default:
		return model.KindUnknown
	}
}

func (c *ErrorClassifier) kindForError(err error) model.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.KindTemporaryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.KindTemporaryNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"unexpected eof",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return model.KindTemporaryNetwork
		}
	}
	if strings.Contains(msg, "service unavailable") || strings.Contains(msg, "bad gateway") {
		return model.KindServiceDown
	}
	return model.KindUnknown
}

// parseRetryAfter understands the delta-seconds form of the Retry-After
// header. The HTTP-date form is rare on rate-limit responses and falls back
// to zero, meaning "use the configured default wait".
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

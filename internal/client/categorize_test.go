package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryCanceled},
		{"wrapped timeout", fmt.Errorf("%w: dial", ErrTimeout), ErrorCategoryTimeout},
		{"circuit open", ErrCircuitOpen, ErrorCategoryCircuitOpen},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"exhausted retries on 5xx", fmt.Errorf("exhausted retries: %w", fmt.Errorf("%w: HTTP 503", ErrUpstreamFailure)), ErrorCategoryUpstream5xx},
		{"bad request", ErrBadRequest, ErrorCategoryBadRequest},
		{"network", fmt.Errorf("%w: refused", ErrNetwork), ErrorCategoryNetwork},
		{"malformed", ErrMalformedResponse, ErrorCategoryParsing},
		{"parse in message", errors.New("parse rhrread: unexpected end"), ErrorCategoryParsing},
		{"connection in message", errors.New("connection reset"), ErrorCategoryNetwork},
		{"memcache in message", errors.New("memcache: no servers configured"), ErrorCategoryCache},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

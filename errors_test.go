package modguard

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"plain", NewProviderError("function", "bad", "bad request"), false},
		{"400", NewProviderError("function", "bad", "bad request").WithStatusCode(400), false},
		{"401", NewProviderError("aliyun", "auth", "denied").WithStatusCode(401), false},
		{"429", NewProviderError("tencent", "limit", "slow down").WithStatusCode(429), true},
		{"503", NewProviderError("huawei", "down", "unavailable").WithStatusCode(503), true},
		{"network", NewProviderError("aliyun", "net", "dial").WithCategory(ErrorCategoryNetwork), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"provider auth", NewProviderError("aliyun", "x", "y").WithStatusCode(403), ErrorCategoryAuth},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"network text", errors.New("dial tcp 10.0.0.1:6379: connection refused"), ErrorCategoryNetwork},
		{"validation", NewValidationError("text", "empty"), ErrorCategoryValidation},
		{"store", NewStoreError("query", "queue_items", errors.New("syntax")), ErrorCategoryStore},
		{"other", errors.New("boom"), ErrorCategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCategory(tt.err); got != tt.want {
				t.Errorf("GetErrorCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNetworkError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"dial tcp: connection refused", ErrConnectionRefused},
		{"lookup redis: no such host", ErrDNSResolution},
		{"connect: network is unreachable", ErrNetworkUnreachable},
		{"read: i/o timeout", ErrTimeout},
	}
	for _, tt := range tests {
		err := WrapNetworkError(errors.New(tt.msg))
		if !errors.Is(err, tt.want) {
			t.Errorf("WrapNetworkError(%q) = %v, want %v", tt.msg, err, tt.want)
		}
	}

	plain := errors.New("constraint violated")
	if got := WrapNetworkError(plain); got != plain {
		t.Errorf("WrapNetworkError() = %v, want unchanged", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get: %w", ErrQueueItemNotFound)) {
		t.Error("IsNotFound(ErrQueueItemNotFound) = false, want true")
	}
	if IsNotFound(ErrQueueEmpty) {
		t.Error("IsNotFound(ErrQueueEmpty) = true, want false")
	}
}

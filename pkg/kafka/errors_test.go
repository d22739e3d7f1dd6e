package kafka

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"tagged transient", NewTransientError("broker down", nil), ErrorTypeTransient},
		{"tagged permanent", NewPermanentError("bad schema", nil), ErrorTypePermanent},
		{"tagged business", NewBusinessError("hold expired", nil), ErrorTypeBusiness},
		{"wrapped tagged error", fmt.Errorf("outer: %w", NewBusinessError("hold expired", nil)), ErrorTypeBusiness},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeTransient},
		{"i/o timeout", errors.New("read tcp: i/o timeout"), ErrorTypeTransient},
		{"unknown defaults to permanent", errors.New("something odd"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("timeout", nil)

	if !ShouldRetry(transient, 0, 3) {
		t.Error("fresh transient error should retry")
	}
	if ShouldRetry(transient, 3, 3) {
		t.Error("exhausted retries must not retry")
	}
	if ShouldRetry(NewPermanentError("bad payload", nil), 0, 3) {
		t.Error("permanent errors must not retry")
	}
	if ShouldRetry(nil, 0, 3) {
		t.Error("nil error must not retry")
	}
}

func TestMessage_RetryCount(t *testing.T) {
	msg := NewMessage().WithKey("k").WithRawValue([]byte("v")).Build()

	if got := msg.GetRetryCount(); got != 0 {
		t.Errorf("initial retry count = %d, want 0", got)
	}

	msg.IncrementRetryCount()
	msg.IncrementRetryCount()

	if got := msg.GetRetryCount(); got != 2 {
		t.Errorf("retry count = %d, want 2", got)
	}
}

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"refused", &TransportError{Kind: TransportRefused}, CategoryTransient},
		{"dns", &TransportError{Kind: TransportDNS}, CategoryTransient},
		{"dial timeout", &TransportError{Kind: TransportTimeout}, CategoryTransient},
		{"tls handshake", &TransportError{Kind: TransportTLSHandshake}, CategoryPermanent},
		{"tls verify", &TransportError{Kind: TransportTLSVerify}, CategoryPermanent},
		{"connection lost", &ConnectionLostError{Generation: 3}, CategoryTransient},
		{"request timeout", &TimeoutError{Op: "PING"}, CategoryTransient},
		{"server retryable flag", &ServerError{Code: "GUARD_FAILED", Retryable: true}, CategoryTransient},
		{"server retryable code", &ServerError{Code: "RATE_LIMITED"}, CategoryTransient},
		{"server conflict", &ServerError{Code: "CONFLICT"}, CategoryTransient},
		{"server permanent", &ServerError{Code: "INVALID_TRANSITION"}, CategoryPermanent},
		{"auth failed", &ServerError{Code: "AUTH_FAILED"}, CategoryPermanent},
		{"protocol", &ProtocolError{Kind: ProtocolMalformed}, CategoryPermanent},
		{"client closed", &ClientClosedError{}, CategoryPermanent},
		{"unknown", errors.New("mystery"), CategoryPermanent},
		{"nil", nil, CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCategorizeWrapped(t *testing.T) {
	err := fmt.Errorf("apply event: %w", &ConnectionLostError{Generation: 7})
	if !IsRetryable(err) {
		t.Error("IsRetryable(wrapped ConnectionLostError) = false, want true")
	}
}

func TestCategoryString(t *testing.T) {
	if CategoryTransient.String() != "transient" || CategoryPermanent.String() != "permanent" {
		t.Error("Category.String() mismatch")
	}
}

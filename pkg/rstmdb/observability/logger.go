// Package observability provides production-grade observability for the
// rstmdb client: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds connection context to a logger.
// Returns a new logger with addr and generation fields.
func EnrichLogger(logger *slog.Logger, addr string, generation uint64) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("addr", addr),
		slog.Uint64("generation", generation),
	)
}

// LogConnected logs a successful connect including handshake and auth.
func LogConnected(logger *slog.Logger, addr string, generation uint64, tlsActive bool) {
	if logger == nil {
		return
	}
	logger.Info("connected",
		slog.String("addr", addr),
		slog.Uint64("generation", generation),
		slog.Bool("tls", tlsActive),
	)
}

// LogInsecureTLS warns that certificate verification is disabled.
// This must be loud: an insecure connection is indistinguishable from a
// man-in-the-middle to the application.
func LogInsecureTLS(logger *slog.Logger, addr string) {
	if logger == nil {
		return
	}
	logger.Warn("TLS CERTIFICATE VERIFICATION DISABLED - connection is not authenticated, do not use in production",
		slog.String("addr", addr),
	)
}

// LogConnectionLost logs the disconnect that triggers the supervisor.
func LogConnectionLost(logger *slog.Logger, addr string, generation uint64, err error) {
	if logger == nil {
		return
	}
	logger.Warn("connection lost",
		slog.String("addr", addr),
		slog.Uint64("generation", generation),
		slog.String("error", errString(err)),
	)
}

// LogReconnectAttempt logs a reconnect attempt before its backoff sleep.
func LogReconnectAttempt(logger *slog.Logger, addr string, attempt int, delay time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("reconnecting",
		slog.String("addr", addr),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}

// LogReconnected logs a successful reconnect after subscription replay.
func LogReconnected(logger *slog.Logger, addr string, generation uint64, attempts, subscriptions int) {
	if logger == nil {
		return
	}
	logger.Info("reconnected",
		slog.String("addr", addr),
		slog.Uint64("generation", generation),
		slog.Int("attempts", attempts),
		slog.Int("subscriptions_replayed", subscriptions),
	)
}

// LogReconnectExhausted logs the transition to Closed after running out of
// reconnect attempts.
func LogReconnectExhausted(logger *slog.Logger, addr string, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("reconnect attempts exhausted, closing client",
		slog.String("addr", addr),
		slog.Int("attempts", attempts),
		slog.String("error", errString(err)),
	)
}

// LogProtocolViolation logs a discarded duplicate or unparseable inbound
// message. The connection survives; the message does not.
func LogProtocolViolation(logger *slog.Logger, detail string, id string) {
	if logger == nil {
		return
	}
	logger.Warn("protocol violation",
		slog.String("detail", detail),
		slog.String("id", id),
	)
}

// LogSubscriptionReplayed logs one subscription re-registered after reconnect.
func LogSubscriptionReplayed(logger *slog.Logger, localID, oldServerID, newServerID string) {
	if logger == nil {
		return
	}
	logger.Debug("subscription replayed",
		slog.String("subscription", localID),
		slog.String("old_server_id", oldServerID),
		slog.String("new_server_id", newServerID),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

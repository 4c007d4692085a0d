// Package rstmdb is a client for the rstmdb state-machine database,
// speaking the RCP binary-framed JSON protocol.
//
// Features:
//   - Concurrent request pipelining with correlation-id matching
//   - Event subscriptions with per-subscription ordering and backpressure
//   - Automatic reconnection with exponential backoff and watch replay
//   - TLS and mutual TLS
//   - Structured logging (slog), metrics and tracing (OpenTelemetry)
//   - Optional WAL-offset checkpointing for resumable consumers
//
// Basic usage:
//
//	client, err := rstmdb.New(rstmdb.Config{
//		Host:          "db.internal",
//		Token:         os.Getenv("RSTMDB_TOKEN"),
//		AutoReconnect: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Open(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.ApplyEvent(ctx, "order-001", "pay", nil)
package rstmdb

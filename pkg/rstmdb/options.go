package rstmdb

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/checkpoint"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/config"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/observability"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/transport"
)

// DisconnectPolicy controls what callers observe while the client is
// between connections.
type DisconnectPolicy string

const (
	// DisconnectFail makes sends fail immediately with a
	// ConnectionLostError during a reconnect window.
	DisconnectFail DisconnectPolicy = "fail"

	// DisconnectWait makes sends block until the supervisor reconnects
	// (or the client closes).
	DisconnectWait DisconnectPolicy = "wait"
)

// Default configuration values.
const (
	DefaultPort           = 7401
	DefaultClientName     = "rstmdb-go"
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultEventBuffer    = 256
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffMax     = 60 * time.Second
)

// Config configures a Client. Every Client instance is independently
// configured; there is no process-wide mutable state.
type Config struct {
	// Host and Port of the rstmdb server.
	Host string
	Port int

	// Token is the bearer token sent in the AUTH step of the handshake.
	// Empty disables authentication.
	Token string

	// ClientName identifies this client in the HELLO handshake.
	ClientName string

	// TLS holds transport security settings. Supplying a CA cert or a
	// client certificate implies TLS.
	TLS transport.TLSOptions

	// ConnectTimeout bounds TCP connect plus TLS handshake per attempt.
	ConnectTimeout time.Duration

	// RequestTimeout bounds each command round-trip.
	RequestTimeout time.Duration

	// AutoReconnect enables the reconnection supervisor. When false, a
	// lost connection closes the client.
	AutoReconnect bool

	// DisconnectPolicy selects wait-or-fail behavior for sends issued
	// during a reconnect window. The choice is explicit configuration,
	// never implicit.
	DisconnectPolicy DisconnectPolicy

	// MaxReconnectAttempts bounds one reconnect cycle. Zero means
	// unlimited.
	MaxReconnectAttempts int

	// ReconnectBackoffBase and ReconnectBackoffMax shape the exponential
	// backoff between attempts (doubling, capped, with jitter).
	ReconnectBackoffBase time.Duration
	ReconnectBackoffMax  time.Duration

	// EventBuffer is the bounded per-subscription consumer queue size.
	EventBuffer int

	// MaxFrameSize bounds received frames. Zero selects the protocol
	// default.
	MaxFrameSize int

	// Logger receives structured client logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics records client metrics. Nil selects NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans traces connects and requests. Nil selects NoopSpanManager.
	Spans observability.SpanManager

	// Offsets, when set, records the last delivered WAL offset per named
	// watch so consumers can resume after a restart.
	Offsets checkpoint.Store

	// OnReconnect is invoked after a successful reconnect, once all
	// subscriptions have been replayed.
	OnReconnect func()
}

// withDefaults fills zero values with defaults and normalizes the policy.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DisconnectPolicy == "" {
		c.DisconnectPolicy = DisconnectFail
	}
	if c.ReconnectBackoffBase <= 0 {
		c.ReconnectBackoffBase = DefaultBackoffBase
	}
	if c.ReconnectBackoffMax <= 0 {
		c.ReconnectBackoffMax = DefaultBackoffMax
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Spans == nil {
		c.Spans = observability.NoopSpanManager{}
	}
	return c
}

// validate rejects configurations the engine cannot honor.
func (c Config) validate() error {
	if c.DisconnectPolicy != DisconnectFail && c.DisconnectPolicy != DisconnectWait {
		return fmt.Errorf("invalid disconnect_policy %q (want %q or %q)",
			c.DisconnectPolicy, DisconnectFail, DisconnectWait)
	}
	if c.TLS.Insecure && !c.TLS.Active() {
		return fmt.Errorf("insecure set without tls enabled")
	}
	return nil
}

// transportConfig projects the client configuration onto the transport.
func (c Config) transportConfig() transport.Config {
	return transport.Config{
		Host:           c.Host,
		Port:           c.Port,
		TLS:            c.TLS,
		ConnectTimeout: c.ConnectTimeout,
		MaxFrameSize:   c.MaxFrameSize,
	}
}

// ConfigFromFile loads a Config from a YAML or JSON file.
//
// Recognized keys: host, port, token, client_name, tls, ca_cert,
// client_cert, client_key, insecure, connect_timeout, request_timeout,
// auto_reconnect, disconnect_policy, max_reconnect_attempts,
// reconnect_backoff_base, reconnect_backoff_max, event_buffer,
// max_frame_size.
func ConfigFromFile(path string) (Config, error) {
	raw, err := config.FromFile(path)
	if err != nil {
		return Config{}, err
	}
	return configFrom(raw), nil
}

func configFrom(raw config.Config) Config {
	return Config{
		Host:       raw.String("host", "127.0.0.1"),
		Port:       raw.Int("port", DefaultPort),
		Token:      raw.String("token", ""),
		ClientName: raw.String("client_name", DefaultClientName),
		TLS: transport.TLSOptions{
			Enabled:    raw.Bool("tls", false),
			CACert:     raw.String("ca_cert", ""),
			ClientCert: raw.String("client_cert", ""),
			ClientKey:  raw.String("client_key", ""),
			Insecure:   raw.Bool("insecure", false),
		},
		ConnectTimeout:       raw.Duration("connect_timeout", DefaultConnectTimeout),
		RequestTimeout:       raw.Duration("request_timeout", DefaultRequestTimeout),
		AutoReconnect:        raw.Bool("auto_reconnect", false),
		DisconnectPolicy:     DisconnectPolicy(raw.String("disconnect_policy", string(DisconnectFail))),
		MaxReconnectAttempts: raw.Int("max_reconnect_attempts", 0),
		ReconnectBackoffBase: raw.Duration("reconnect_backoff_base", DefaultBackoffBase),
		ReconnectBackoffMax:  raw.Duration("reconnect_backoff_max", DefaultBackoffMax),
		EventBuffer:          raw.Int("event_buffer", DefaultEventBuffer),
		MaxFrameSize:         raw.Int("max_frame_size", 0),
	}
}

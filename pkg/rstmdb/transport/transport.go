// Package transport owns the raw byte-stream connection to an rstmdb server.
//
// A Conn carries exactly one physical connection (plaintext or TLS/mTLS) and
// exchanges whole frames only: Send serializes writers so frames are never
// interleaved, Receive blocks until a complete frame arrives. The transport
// holds no retry policy; on any IO error the connection is marked dead once
// and the owner is notified through the Lost channel. Reconnection is the
// supervisor's job.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// Config describes how to reach the server.
type Config struct {
	// Host and Port of the server.
	Host string
	Port int

	// TLS holds the transport security settings.
	TLS TLSOptions

	// ConnectTimeout bounds the TCP connect plus TLS handshake.
	ConnectTimeout time.Duration

	// MaxFrameSize bounds received frames. Zero selects the protocol
	// default.
	MaxFrameSize int
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Conn is a live framed connection. Owned exclusively by the session that
// dialed it; the dispatcher and router never touch it directly.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	addr       string
	generation uint64
	maxFrame   int

	writeMu sync.Mutex
	recvBuf []byte

	dead    atomic.Bool
	lost    chan error
	lostOne sync.Once
}

// generationCounter increments per dial so state tied to a superseded
// connection can be fenced.
var generationCounter atomic.Uint64

// Dial establishes a connection, performing the TCP connect and, when
// configured, the TLS handshake. On failure no partial connection is left
// open and the error is a *errors.TransportError classifying the cause.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	addr := cfg.Addr()

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	conn := raw
	if cfg.TLS.Active() {
		tlsCfg, err := NewTLSConfig(cfg.TLS)
		if err != nil {
			raw.Close()
			return nil, &rcperrors.TransportError{Kind: rcperrors.TransportTLSHandshake, Addr: addr, Err: err}
		}
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = cfg.Host
		}
		tlsConn := tls.Client(raw, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, classifyTLSError(addr, err)
		}
		conn = tlsConn
	}

	return &Conn{
		conn:       conn,
		reader:     conn,
		addr:       addr,
		generation: generationCounter.Add(1),
		maxFrame:   cfg.MaxFrameSize,
		lost:       make(chan error, 1),
	}, nil
}

// Generation returns the connection generation, unique per dial.
func (c *Conn) Generation() uint64 {
	return c.generation
}

// Addr returns the peer address.
func (c *Conn) Addr() string {
	return c.addr
}

// Lost delivers the single connection-lost signal for this connection.
func (c *Conn) Lost() <-chan error {
	return c.lost
}

// Alive reports whether the connection has not been marked dead.
func (c *Conn) Alive() bool {
	return !c.dead.Load()
}

// Send writes one whole frame. Writes are serialized so concurrent senders
// never interleave partial frames.
func (c *Conn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.dead.Load() {
		return &rcperrors.ConnectionLostError{Generation: c.generation}
	}

	// net.Conn.Write retries short writes internally; any error leaves the
	// stream in an unknown state.
	if _, err := c.conn.Write(frame); err != nil {
		c.markLost(err)
		return &rcperrors.ConnectionLostError{Generation: c.generation, Err: err}
	}
	return nil
}

// Receive blocks until one complete frame payload is available. Short reads
// are absorbed internally; an IO error marks the connection dead and emits
// the Lost signal.
func (c *Conn) Receive() (*protocol.Frame, error) {
	for {
		frame, rest, err := protocol.DecodeFrame(c.recvBuf, c.maxFrame)
		if err != nil {
			// Desynchronized stream: fatal to the connection.
			c.markLost(err)
			return nil, err
		}
		if frame != nil {
			c.recvBuf = rest
			return frame, nil
		}

		chunk := make([]byte, 8192)
		n, err := c.reader.Read(chunk)
		if n > 0 {
			c.recvBuf = append(c.recvBuf, chunk[:n]...)
			continue
		}
		if err != nil {
			c.markLost(err)
			if errors.Is(err, io.EOF) {
				return nil, &rcperrors.ConnectionLostError{Generation: c.generation, Err: io.EOF}
			}
			return nil, &rcperrors.ConnectionLostError{Generation: c.generation, Err: err}
		}
	}
}

// Close tears down the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	c.dead.Store(true)
	return c.conn.Close()
}

// markLost marks the connection dead and emits the Lost signal exactly once.
func (c *Conn) markLost(err error) {
	c.dead.Store(true)
	c.lostOne.Do(func() {
		c.lost <- err
		close(c.lost)
	})
}

// classifyDialError maps dial failures onto the transport error kinds.
func classifyDialError(addr string, err error) *rcperrors.TransportError {
	kind := rcperrors.TransportRefused

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		kind = rcperrors.TransportDNS
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		kind = rcperrors.TransportTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = rcperrors.TransportRefused
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = rcperrors.TransportTimeout
		}
	}

	return &rcperrors.TransportError{Kind: kind, Addr: addr, Err: err}
}

// classifyTLSError separates certificate verification failures from other
// handshake failures so security misconfiguration is never retried.
func classifyTLSError(addr string, err error) *rcperrors.TransportError {
	kind := rcperrors.TransportTLSHandshake

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidCert) {
		kind = rcperrors.TransportTLSVerify
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = rcperrors.TransportTimeout
	}

	return &rcperrors.TransportError{Kind: kind, Addr: addr, Err: err}
}

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSOptions describes the transport security configuration.
// A zero value means plaintext TCP.
type TLSOptions struct {
	// Enabled turns TLS on. Automatically implied when CACert or a client
	// certificate is supplied.
	Enabled bool

	// CACert is the path to a PEM CA bundle used to verify the server
	// certificate. Empty means the system root pool.
	CACert string

	// ClientCert and ClientKey are paths to a PEM client certificate and
	// key. Supplying both enables mutual TLS.
	ClientCert string
	ClientKey  string

	// Insecure skips server certificate verification. Development only;
	// the client logs a prominent warning when set.
	Insecure bool

	// ServerName overrides the name used for certificate verification.
	// Defaults to the dialed host.
	ServerName string
}

// Active reports whether any TLS setting requires a TLS handshake.
func (o TLSOptions) Active() bool {
	return o.Enabled || o.CACert != "" || o.ClientCert != ""
}

// Mutual reports whether a client certificate is configured.
func (o TLSOptions) Mutual() bool {
	return o.ClientCert != "" && o.ClientKey != ""
}

// NewTLSConfig builds a *tls.Config from the options.
// Returns nil when TLS is not active.
func NewTLSConfig(o TLSOptions) (*tls.Config, error) {
	if !o.Active() {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: o.ServerName,
	}

	if o.Insecure {
		cfg.InsecureSkipVerify = true
	} else if o.CACert != "" {
		pem, err := os.ReadFile(o.CACert)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.CACert)
		}
		cfg.RootCAs = pool
	}

	if o.Mutual() {
		cert, err := tls.LoadX509KeyPair(o.ClientCert, o.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Package tls builds TLS configurations for the dashboard's listeners and for
// its client to the training backend.
//
// Both sides enforce a TLS 1.3 floor. A CA file is optional: on the server it
// turns on client certificate verification (mutual TLS), on the client it
// replaces the system roots for verifying the backend.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds certificate file paths for one side of a connection.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate checks that the files needed by an enabled server config exist.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("tls enabled but cert/key files not specified")
	}
	return statFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// ValidateClient checks an enabled client config. A client certificate is
// optional, but cert and key must be given together.
func (c Config) ValidateClient() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls client cert and key must be specified together")
	}
	return statFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// MutualTLS reports whether client certificates are verified.
func (c Config) MutualTLS() bool {
	return c.Enabled && c.CAFile != ""
}

// NewServerTLSConfig creates a server configuration presenting cfg's
// certificate. When cfg.CAFile is set clients must present a certificate
// signed by that CA.
func NewServerTLSConfig(cfg Config) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	out := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if cfg.CAFile != "" {
		pool, err := loadPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientCAs = pool
		out.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return out, nil
}

// NewClientTLSConfig creates a client configuration for reaching the backend.
// It returns nil when cfg is disabled.
func NewClientTLSConfig(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	out := &tls.Config{MinVersion: tls.VersionTLS13}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pool, err := loadPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		out.RootCAs = pool
	}

	return out, nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func statFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}

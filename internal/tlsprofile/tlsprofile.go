// Package tlsprofile loads named TLS profiles from configuration and
// registers them with the MySQL driver so a connector.DSN can reference one
// by name.
package tlsprofile

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	mysql "github.com/go-sql-driver/mysql"

	"github.com/tasksql/taskdb/internal/config"
)

// Register builds a *tls.Config for every profile in profiles and registers
// it with go-sql-driver/mysql under its profile name. A connector.DSN with a
// matching TLSProfile then picks it up automatically through the driver's
// own tls=<name> DSN parameter.
func Register(profiles config.TLSProfilesConfig) error {
	for name, p := range profiles {
		cfg, err := build(p)
		if err != nil {
			return fmt.Errorf("tls profile %q: %w", name, err)
		}
		if err := mysql.RegisterTLSConfig(name, cfg); err != nil {
			return fmt.Errorf("registering tls profile %q: %w", name, err)
		}
	}
	return nil
}

func build(p config.TLSProfileConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         p.ServerName,
		InsecureSkipVerify: p.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if p.CertFile != "" && p.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if p.CAFile != "" {
		caCert, err := os.ReadFile(p.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parsing CA certificate from %s", p.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// Validate checks that every referenced file in a profile is readable and,
// when both are set, that the certificate/key pair actually loads.
func Validate(p config.TLSProfileConfig) error {
	for _, f := range []string{p.CertFile, p.KeyFile, p.CAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file not found: %w", err)
		}
	}
	if p.CertFile != "" && p.KeyFile != "" {
		if _, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile); err != nil {
			return fmt.Errorf("loading certificate pair: %w", err)
		}
	}
	return nil
}

package forwarder

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// buildTLSConfig translates a TLSConfig into a *tls.Config: a CA pool
// loaded from file, an optional client cert/key pair, ServerName derived
// from the target host
// when not given explicitly, and TLS 1.2 as the minimum version unless
// MinVersion selects "1.1" or "1.3". InsecureSkipVerify is
// only ever what the operator configured, never forced on.
func buildTLSConfig(cfg TLSConfig, fallbackServerName string) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.ServerName != "" {
		tc.ServerName = cfg.ServerName
	} else {
		tc.ServerName = fallbackServerName
	}

	switch strings.ToLower(cfg.MinVersion) {
	case "1.3", "tls1.3":
		tc.MinVersion = tls.VersionTLS13
	case "1.1", "tls1.1":
		tc.MinVersion = tls.VersionTLS11
	}

	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("forwarder: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("forwarder: no certificates found in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("forwarder: load client keypair: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	if len(cfg.PermittedPeers) > 0 {
		permitted := cfg.PermittedPeers
		tc.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			for _, chain := range verifiedChains {
				if len(chain) == 0 {
					continue
				}
				leaf := chain[0]
				for _, p := range permitted {
					if leaf.Subject.CommonName == p {
						return nil
					}
					for _, san := range leaf.DNSNames {
						if san == p {
							return nil
						}
					}
				}
			}
			return fmt.Errorf("forwarder: peer certificate not in permitted peer list")
		}
	}

	return tc, nil
}

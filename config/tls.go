package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// LoadTLSConfig builds a server *tls.Config from the PEM paths in cfg.
// If cert and key are empty it returns (nil, nil), meaning the caller
// should serve plain HTTP.
func LoadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.Cert == "" && cfg.Key == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("load rpc cert/key: %w", err)
	}
	out := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if cfg.ClientCA == "" {
		return out, nil
	}

	caPEM, err := os.ReadFile(cfg.ClientCA)
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse client CA certificate")
	}
	out.ClientCAs = caPool
	out.ClientAuth = tls.RequireAndVerifyClientCert
	return out, nil
}

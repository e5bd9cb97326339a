// Package certgen generates a private CA plus server and client
// certificate/key pairs for serving the node RPC endpoint over mutual TLS.
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names written by Generate.
const (
	CACert     = "ca.crt"
	CAKey      = "ca.key"
	ServerCert = "server.crt"
	ServerKey  = "server.key"
	ClientCert = "client.crt"
	ClientKey  = "client.key"
)

// Options configures the generated certificates.
type Options struct {
	// Hosts are extra SANs for the server certificate; entries that parse
	// as IPs become IP SANs. localhost and the loopback IPs are always added.
	Hosts []string
	// ClientName is the client certificate's common name; default "rpc-client".
	ClientName string
	// Validity of the leaf certificates; default one year.
	Validity time.Duration
}

type issued struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// Generate writes a CA, a server pair and a client pair into dir. All files
// are created with 0600 permissions.
func Generate(dir string, opts Options) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if opts.ClientName == "" {
		opts.ClientName = "rpc-client"
	}
	if opts.Validity <= 0 {
		opts.Validity = 365 * 24 * time.Hour
	}

	ca, err := issue(&x509.Certificate{
		Subject:               pkix.Name{CommonName: "tolchallenge RPC CA"},
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}, nil)
	if err != nil {
		return fmt.Errorf("ca: %w", err)
	}

	server := &x509.Certificate{
		Subject:     pkix.Name{CommonName: "tolchallenge-rpc"},
		NotAfter:    time.Now().Add(opts.Validity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			server.IPAddresses = append(server.IPAddresses, ip)
		} else {
			server.DNSNames = append(server.DNSNames, h)
		}
	}
	srv, err := issue(server, &ca)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	cli, err := issue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: opts.ClientName},
		NotAfter:    time.Now().Add(opts.Validity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, &ca)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	for _, out := range []struct {
		pair      issued
		crt, name string
	}{{ca, CACert, CAKey}, {srv, ServerCert, ServerKey}, {cli, ClientCert, ClientKey}} {
		if err := writePair(dir, out.crt, out.name, out.pair); err != nil {
			return err
		}
	}
	return nil
}

// issue creates a fresh P-256 key and certificate from tmpl, signed by
// parent or self-signed when parent is nil.
func issue(tmpl *x509.Certificate, parent *issued) (issued, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return issued{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return issued{}, fmt.Errorf("generate serial: %w", err)
	}
	tmpl.SerialNumber = serial
	tmpl.NotBefore = time.Now().Add(-time.Hour)

	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	if err != nil {
		return issued{}, fmt.Errorf("create cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return issued{}, fmt.Errorf("parse cert: %w", err)
	}
	return issued{cert: cert, key: key}, nil
}

func writePair(dir, certName, keyName string, p issued) error {
	if err := writePEM(filepath.Join(dir, certName), "CERTIFICATE", p.cert.Raw); err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(p.key)
	if err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, keyName), "EC PRIVATE KEY", keyDER)
}

func writePEM(path, typ string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: typ, Bytes: data})
}

package tunnel

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// GenerateDeviceCert creates a fresh RSA key pair and a self-signed
// certificate for deviceID, used as the device's X.509 client identity
// during the mTLS handshake (spec.md §4.6 Security: "key pair generated
// locally, certificate signed by a known authority"). Adapted from the
// teacher corpus's QUIC TLS bootstrap (self-signed server cert); here the
// same shape provisions a client identity instead, and carries
// ExtKeyUsageClientAuth so it validates against a peer's client-cert pool.
func GenerateDeviceCert(deviceID string) (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tunnel: generate device key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: deviceID},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tunnel: create device cert: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}, nil
}

// ClientTLSConfig builds the mutual-TLS config the device uses to dial the
// remote peer: presents cert as its client identity, pins rootCAs for
// server authentication, and forbids anything below TLS 1.3.
func ClientTLSConfig(cert tls.Certificate, rootCAs *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      rootCAs,
		MinVersion:   tls.VersionTLS13,
	}
}

// ServerTLSConfig builds the peer-side counterpart: requires and verifies a
// client certificate against clientCAs, presents cert as the server's own
// identity.
func ServerTLSConfig(cert tls.Certificate, clientCAs *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
}

package codec

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// parseKeyPair resolves PEM-encoded asymmetric key material for the given
// JWT algorithm family. When publicPEM is empty the verification key is
// derived from the private key.
func parseKeyPair(alg string, privatePEM, publicPEM []byte) (private, public any, err error) {
	key, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS"):
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("algorithm %s requires an RSA private key", alg)
		}
		private = rsaKey
		public = &rsaKey.PublicKey
	case strings.HasPrefix(alg, "ES"):
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("algorithm %s requires an ECDSA private key", alg)
		}
		private = ecKey
		public = &ecKey.PublicKey
	case alg == "EdDSA":
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("algorithm %s requires an Ed25519 private key", alg)
		}
		private = edKey
		public = edKey.Public()
	default:
		return nil, nil, fmt.Errorf("unsupported asymmetric algorithm %q", alg)
	}

	if len(publicPEM) > 0 {
		public, err = parsePublicKey(publicPEM)
		if err != nil {
			return nil, nil, err
		}
	}
	return private, public, nil
}

func parsePrivateKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key material")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unable to parse private key from PEM block of type %q", block.Type)
}

func parsePublicKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key material")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	// Certificates are accepted as verification material too.
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		return cert.PublicKey, nil
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unable to parse public key from PEM block of type %q", block.Type)
}

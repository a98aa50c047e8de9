// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// rsaKeyBits is the modulus size for generated RSA keys.
const rsaKeyBits = 2048

// KeyPair is a PEM-encoded private key (PKCS #8) and public key (PKIX).
type KeyPair struct {
	PrivatePEM []byte
	PublicPEM  []byte
}

// GenerateKeyPair creates a new key pair for an asymmetric algorithm.
func GenerateKeyPair(algorithm string) (*KeyPair, error) {
	var (
		priv crypto.Signer
		err  error
	)
	switch algorithm {
	case AlgRS256:
		priv, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	case AlgES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgEdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, oops.Code("TOKEN_UNSUPPORTED_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("cannot generate keys for %q", algorithm)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_KEYGEN_FAILED").With("algorithm", algorithm).Wrap(err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, oops.Code("TOKEN_KEYGEN_FAILED").With("operation", "marshal private key").Wrap(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, oops.Code("TOKEN_KEYGEN_FAILED").With("operation", "marshal public key").Wrap(err)
	}

	return &KeyPair{
		PrivatePEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
	}, nil
}

// Save writes the pair to the given paths. The private key is written with
// 0600 permissions. Existing files are not overwritten.
func (kp *KeyPair) Save(privatePath, publicPath string) error {
	for _, p := range []string{privatePath, publicPath} {
		if _, err := os.Stat(p); err == nil {
			return oops.Code("TOKEN_KEY_EXISTS").With("path", p).Errorf("refusing to overwrite %s", p)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return oops.Code("TOKEN_KEY_WRITE_FAILED").With("path", p).Wrap(err)
		}
	}
	if err := os.WriteFile(privatePath, kp.PrivatePEM, 0o600); err != nil {
		return oops.Code("TOKEN_KEY_WRITE_FAILED").With("path", privatePath).Wrap(err)
	}
	if err := os.WriteFile(publicPath, kp.PublicPEM, 0o644); err != nil { //nolint:gosec // public key is meant to be readable
		return oops.Code("TOKEN_KEY_WRITE_FAILED").With("path", publicPath).Wrap(err)
	}
	return nil
}

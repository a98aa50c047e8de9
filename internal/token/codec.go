// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token signs and verifies the JWTs issued by the auth service.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Supported signing algorithms.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
	AlgEdDSA = "EdDSA"
	AlgHS256 = "HS256"
)

// Decode failures. Every failure other than expiry is ErrInvalid.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token malformed or signature invalid")
)

// minSecretLength is the shortest HS256 secret accepted.
const minSecretLength = 32

// Payload is the data carried inside a token. IssuedAt and ExpiresAt are
// set by Encode and filled in by Decode.
type Payload struct {
	Subject   string    `json:"sub"`
	SessionID string    `json:"jid"`
	Role      string    `json:"role"`
	IsRefresh bool      `json:"is_refresh"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type claims struct {
	SessionID string `json:"jid"`
	Role      string `json:"role"`
	IsRefresh bool   `json:"is_refresh"`
	jwt.RegisteredClaims
}

// Config selects the algorithm and key material for a Codec.
type Config struct {
	// Algorithm is one of AlgRS256, AlgES256, AlgEdDSA or AlgHS256.
	Algorithm string

	// PrivateKeyPEM and PublicKeyPEM hold the asymmetric key pair. When
	// PublicKeyPEM is empty the public key is derived from the private key.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte

	// Secret is the HS256 shared secret.
	Secret []byte

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Codec encodes and decodes token payloads.
type Codec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	now       func() time.Time
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	c := &Codec{now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}

	var err error
	switch cfg.Algorithm {
	case AlgHS256:
		if len(cfg.Secret) < minSecretLength {
			return nil, oops.Code("TOKEN_INVALID_KEY").
				With("min_length", minSecretLength).
				Errorf("HS256 secret must be at least %d bytes", minSecretLength)
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.Secret
		c.verifyKey = cfg.Secret
		return c, nil
	case AlgRS256:
		c.method = jwt.SigningMethodRS256
		c.signKey, c.verifyKey, err = rsaKeys(cfg.PrivateKeyPEM, cfg.PublicKeyPEM)
	case AlgES256:
		c.method = jwt.SigningMethodES256
		c.signKey, c.verifyKey, err = ecdsaKeys(cfg.PrivateKeyPEM, cfg.PublicKeyPEM)
	case AlgEdDSA:
		c.method = jwt.SigningMethodEdDSA
		c.signKey, c.verifyKey, err = ed25519Keys(cfg.PrivateKeyPEM, cfg.PublicKeyPEM)
	default:
		return nil, oops.Code("TOKEN_UNSUPPORTED_ALGORITHM").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_KEY").With("algorithm", cfg.Algorithm).Wrap(err)
	}
	return c, nil
}

// ConfigFromFiles reads the PEM files for an asymmetric algorithm, or takes
// secret for HS256.
func ConfigFromFiles(algorithm, privateKeyPath, publicKeyPath, secret string) (Config, error) {
	cfg := Config{Algorithm: algorithm}
	if algorithm == AlgHS256 {
		cfg.Secret = []byte(secret)
		return cfg, nil
	}

	if privateKeyPath == "" {
		return Config{}, oops.Code("TOKEN_KEY_MISSING").
			With("algorithm", algorithm).
			Errorf("private key path is required for %s", algorithm)
	}
	priv, err := os.ReadFile(filepath.Clean(privateKeyPath))
	if err != nil {
		return Config{}, oops.Code("TOKEN_KEY_READ_FAILED").With("path", privateKeyPath).Wrap(err)
	}
	cfg.PrivateKeyPEM = priv

	if publicKeyPath != "" {
		pub, err := os.ReadFile(filepath.Clean(publicKeyPath))
		if err != nil {
			return Config{}, oops.Code("TOKEN_KEY_READ_FAILED").With("path", publicKeyPath).Wrap(err)
		}
		cfg.PublicKeyPEM = pub
	}
	return cfg, nil
}

// Algorithm returns the JWT alg header value the codec signs with.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Encode signs p with issued-at now and expiry now+ttl. Timestamps have
// second precision, so encoding the same payload twice within a second
// yields the same token for deterministic algorithms. A ttl of zero or less
// yields a token that is already expired.
func (c *Codec) Encode(p Payload, ttl time.Duration) (string, error) {
	now := c.now().Truncate(time.Second)
	cl := claims{
		SessionID: p.SessionID,
		Role:      p.Role,
		IsRefresh: p.IsRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, cl).SignedString(c.signKey)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").
			With("algorithm", c.method.Alg()).
			Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of raw and returns its payload.
// Returns ErrExpired for a well-signed expired token and ErrInvalid for
// anything else.
func (c *Codec) Decode(raw string) (*Payload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var cl claims
	parsed, err := parser.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").With("cause", err.Error()).Wrap(ErrInvalid)
	}
	if !parsed.Valid || cl.Subject == "" || cl.SessionID == "" {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalid)
	}

	p := &Payload{
		Subject:   cl.Subject,
		SessionID: cl.SessionID,
		Role:      cl.Role,
		IsRefresh: cl.IsRefresh,
	}
	if cl.IssuedAt != nil {
		p.IssuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		p.ExpiresAt = cl.ExpiresAt.Time
	}
	return p, nil
}

func rsaKeys(privPEM, pubPEM []byte) (any, any, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse RSA private key: %w", err)
	}
	if len(pubPEM) == 0 {
		return priv, &priv.PublicKey, nil
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse RSA public key: %w", err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, nil, errors.New("RSA public key does not match private key")
	}
	return priv, pub, nil
}

func ecdsaKeys(privPEM, pubPEM []byte) (any, any, error) {
	priv, err := jwt.ParseECPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse EC private key: %w", err)
	}
	if len(pubPEM) == 0 {
		return priv, &priv.PublicKey, nil
	}
	pub, err := jwt.ParseECPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse EC public key: %w", err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, nil, errors.New("EC public key does not match private key")
	}
	return priv, pub, nil
}

func ed25519Keys(privPEM, pubPEM []byte) (any, any, error) {
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse Ed25519 private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, nil, errors.New("private key is not Ed25519")
	}
	derived, _ := priv.Public().(ed25519.PublicKey)
	if len(pubPEM) == 0 {
		return priv, derived, nil
	}
	parsedPub, err := jwt.ParseEdPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse Ed25519 public key: %w", err)
	}
	pub, ok := parsedPub.(ed25519.PublicKey)
	if !ok || !derived.Equal(pub) {
		return nil, nil, errors.New("Ed25519 public key does not match private key")
	}
	return priv, pub, nil
}


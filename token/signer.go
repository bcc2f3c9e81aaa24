// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package token signs and verifies the service's compact JWT access tokens.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by every access token: sub, jti, iss, aud, iat and exp.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer produces and verifies tokens with a single, deployment-wide
// algorithm: RS256 when a public key is configured, HS256 otherwise.
type Signer struct {
	method    jwt.SigningMethod
	signKey   any // []byte for HS256, *rsa.PrivateKey for RS256, nil when verify-only
	verifyKey any
	issuer    string
	audience  string
	nowFunc   func() time.Time
	newID     func() string
}

type Option func(*Signer)

// WithIssuer sets the iss claim on issued tokens and requires it on verification.
func WithIssuer(issuer string) Option {
	return func(s *Signer) {
		s.issuer = issuer
	}
}

// WithAudience sets the aud claim on issued tokens and requires it on verification.
func WithAudience(audience string) Option {
	return func(s *Signer) {
		s.audience = audience
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Signer) {
		s.nowFunc = now
	}
}

func NewHMACSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return newSigner(jwt.SigningMethodHS256, secret, secret, opts), nil
}

// NewRSASigner builds an RS256 signer. privateKeyPEM may be empty, in which
// case the signer can only verify.
func NewRSASigner(publicKeyPEM, privateKeyPEM []byte, opts ...Option) (*Signer, error) {
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrInvalidKey, err)
	}

	var signKey any
	if len(privateKeyPEM) > 0 {
		privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: private key: %w", ErrInvalidKey, err)
		}
		if !privateKey.PublicKey.Equal(publicKey) {
			return nil, ErrKeyPairMismatch
		}
		signKey = privateKey
	}

	return newSigner(jwt.SigningMethodRS256, signKey, publicKey, opts), nil
}

func newSigner(method jwt.SigningMethod, signKey, verifyKey any, opts []Option) *Signer {
	s := &Signer{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Algorithm returns the JWS alg this signer issues and accepts.
func (s *Signer) Algorithm() string {
	return s.method.Alg()
}

// CanSign reports whether the signer holds key material for issuing tokens.
func (s *Signer) CanSign() bool {
	return s.signKey != nil
}

// Sign issues a token for subject that expires lifetime from now. Each token
// gets a fresh random jti, which is the key used for revocation.
func (s *Signer) Sign(subject string, lifetime time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, ErrEmptySubject
	}
	if lifetime < time.Second {
		return "", nil, ErrInvalidLifetime
	}
	if !s.CanSign() {
		return "", nil, ErrNoSigningKey
	}

	now := s.nowFunc()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        s.newID(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry, in that
// order of precedence, and returns the token's claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(s.nowFunc),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// keyFunc refuses any alg other than the configured one, including "none"
// and HS256 tokens presented to an RS256 deployment.
func (s *Signer) keyFunc(t *jwt.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != s.method.Alg() {
		return nil, fmt.Errorf("%w: got %v, want %s", ErrAlgorithmMismatch, t.Header["alg"], s.method.Alg())
	}
	return s.verifyKey, nil
}

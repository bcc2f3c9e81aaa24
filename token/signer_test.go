// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "testsecret"
	testIssuer   = "urn:test"
	testAudience = "urn:dev"
)

func generateRSAKeyPEM(t *testing.T) (publicPEM, privatePEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return publicPEM, privatePEM
}

func newTestSigner(t *testing.T, secret string, opts ...Option) *Signer {
	t.Helper()
	opts = append([]Option{WithIssuer(testIssuer), WithAudience(testAudience)}, opts...)
	s, err := NewHMACSigner([]byte(secret), opts...)
	require.NoError(t, err)
	return s
}

func TestHS256RoundTrip(t *testing.T) {
	s := newTestSigner(t, testSecret)
	assert.Equal(t, "HS256", s.Algorithm())
	assert.True(t, s.CanSign())

	signed, issued, err := s.Sign("1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	claims, err := s.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{testAudience}, claims.Audience)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	assert.Equal(t, time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestSignGeneratesUniqueTokenIDs(t *testing.T) {
	s := newTestSigner(t, testSecret)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, claims, err := s.Sign("1", time.Minute)
		require.NoError(t, err)
		assert.False(t, seen[claims.ID], "token id reused")
		seen[claims.ID] = true
	}
}

func TestSignValidation(t *testing.T) {
	s := newTestSigner(t, testSecret)

	t.Run("EmptySubject", func(t *testing.T) {
		_, _, err := s.Sign("", time.Minute)
		assert.ErrorIs(t, err, ErrEmptySubject)
	})

	t.Run("ShortLifetime", func(t *testing.T) {
		_, _, err := s.Sign("1", 0)
		assert.ErrorIs(t, err, ErrInvalidLifetime)
	})

	t.Run("EmptySecret", func(t *testing.T) {
		_, err := NewHMACSigner(nil)
		assert.ErrorIs(t, err, ErrEmptySecret)
	})
}

func TestVerifyRejections(t *testing.T) {
	s := newTestSigner(t, testSecret)

	t.Run("WrongSecret", func(t *testing.T) {
		other := newTestSigner(t, "wrong")
		signed, _, err := other.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		other := newTestSigner(t, testSecret, WithAudience("other"))
		signed, _, err := other.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(signed)
		assert.ErrorIs(t, err, ErrAudienceMismatch)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := newTestSigner(t, testSecret, WithIssuer("urn:elsewhere"))
		signed, _, err := other.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(signed)
		assert.ErrorIs(t, err, ErrIssuerMismatch)
	})

	t.Run("WrongSecretAndAudience", func(t *testing.T) {
		other := newTestSigner(t, "wrong", WithAudience("other"))
		signed, _, err := other.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Expired", func(t *testing.T) {
		now := time.Now()
		clocked := newTestSigner(t, testSecret, WithNowFunc(func() time.Time { return now }))
		signed, _, err := clocked.Sign("1", time.Minute)
		require.NoError(t, err)

		now = now.Add(time.Minute)
		_, err = clocked.Verify(signed)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.Verify(signed)
		assert.ErrorIs(t, err, ErrAlgorithmMismatch)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrMalformedToken)
	})
}

func TestRS256(t *testing.T) {
	publicPEM, privatePEM := generateRSAKeyPEM(t)

	s, err := NewRSASigner(publicPEM, privatePEM, WithIssuer(testIssuer), WithAudience(testAudience))
	require.NoError(t, err)
	assert.Equal(t, "RS256", s.Algorithm())

	signed, _, err := s.Sign("1", time.Minute)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		claims, err := s.Verify(signed)
		require.NoError(t, err)
		assert.Equal(t, "1", claims.Subject)
	})

	t.Run("VerifyOnly", func(t *testing.T) {
		verifier, err := NewRSASigner(publicPEM, nil, WithIssuer(testIssuer), WithAudience(testAudience))
		require.NoError(t, err)
		assert.False(t, verifier.CanSign())

		claims, err := verifier.Verify(signed)
		require.NoError(t, err)
		assert.Equal(t, "1", claims.Subject)

		_, _, err = verifier.Sign("1", time.Minute)
		assert.ErrorIs(t, err, ErrNoSigningKey)
	})

	t.Run("HS256WithPublicKeyAsSecret", func(t *testing.T) {
		forger := newTestSigner(t, string(publicPEM))
		forged, _, err := forger.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(forged)
		assert.ErrorIs(t, err, ErrAlgorithmMismatch)
	})

	t.Run("OtherKeyPair", func(t *testing.T) {
		otherPublic, otherPrivate := generateRSAKeyPEM(t)
		other, err := NewRSASigner(otherPublic, otherPrivate, WithIssuer(testIssuer), WithAudience(testAudience))
		require.NoError(t, err)
		forged, _, err := other.Sign("1", time.Minute)
		require.NoError(t, err)

		_, err = s.Verify(forged)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("MismatchedPair", func(t *testing.T) {
		_, otherPrivate := generateRSAKeyPEM(t)
		_, err := NewRSASigner(publicPEM, otherPrivate)
		assert.ErrorIs(t, err, ErrKeyPairMismatch)
	})

	t.Run("InvalidPEM", func(t *testing.T) {
		_, err := NewRSASigner([]byte("not pem"), nil)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestIssuerAndAudienceOptional(t *testing.T) {
	s, err := NewHMACSigner([]byte(testSecret))
	require.NoError(t, err)

	signed, _, err := s.Sign("1", time.Minute)
	require.NoError(t, err)

	claims, err := s.Verify(signed)
	require.NoError(t, err)
	assert.Empty(t, claims.Issuer)
	assert.Empty(t, claims.Audience)
}

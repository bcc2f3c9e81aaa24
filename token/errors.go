// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken    = errors.New("token: malformed")
	ErrInvalidSignature  = errors.New("token: invalid signature")
	ErrAlgorithmMismatch = errors.New("token: algorithm mismatch")
	ErrIssuerMismatch    = errors.New("token: issuer mismatch")
	ErrAudienceMismatch  = errors.New("token: audience mismatch")
	ErrTokenExpired      = errors.New("token: expired")
	ErrTokenNotYetValid  = errors.New("token: not yet valid")
	ErrEmptySubject      = errors.New("token: empty subject")
	ErrNoSigningKey      = errors.New("token: no signing key configured")
)

var (
	ErrEmptySecret     = errors.New("jwt secret must not be empty")
	ErrInvalidKey      = errors.New("rsa: invalid key")
	ErrKeyPairMismatch = errors.New("rsa: private key does not match public key")
	ErrInvalidLifetime = errors.New("token lifetime must be at least one second")
)

// mapJWTError translates jwt library errors into this package's errors,
// keeping the original in the chain.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %w", ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrAudienceMismatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}

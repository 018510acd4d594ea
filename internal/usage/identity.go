// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ksaregtech/regtech-tui/internal/storage"
)

const (
	identityIssuer = "regtech"
	signingKeySize = 32
)

// identityClaims is the persisted identity, signed with the per-device key.
type identityClaims struct {
	Name     string `json:"name,omitempty"`
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// signIdentity encodes id as an HS256 token.
func signIdentity(id Identity, key []byte) (string, error) {
	claims := identityClaims{
		Name:     id.Name,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   identityIssuer,
			Subject:  id.CredentialID,
			IssuedAt: jwt.NewNumericDate(id.AuthenticatedAt),
		},
	}
	if !id.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(id.ExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign identity: %w", err)
	}
	return signed, nil
}

// parseIdentity verifies a token and returns its identity.
func parseIdentity(tokenString string, key []byte, now func() time.Time) (Identity, error) {
	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(identityIssuer),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("identity token has no subject")
	}

	id := Identity{
		Name:         claims.Name,
		CredentialID: claims.Subject,
		Provider:     claims.Provider,
	}
	if claims.IssuedAt != nil {
		id.AuthenticatedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// signingKey returns the device signing key, creating it when create is set.
func signingKey(store Store, create bool) ([]byte, error) {
	encoded, err := store.Get(KeySigningKey)
	if err == nil {
		key, decErr := hex.DecodeString(encoded)
		if decErr == nil && len(key) == signingKeySize {
			return key, nil
		}
		if !create {
			return nil, fmt.Errorf("corrupt signing key")
		}
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, err
	} else if !create {
		return nil, err
	}

	key := make([]byte, signingKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := store.Set(KeySigningKey, hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return key, nil
}

// Package auth mints and verifies the signed resident tokens presented on
// the WebSocket endpoint. Tokens are NaCl secretbox seals over a small JSON
// claims object, base64url-encoded: nonce ∥ box.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload sealed inside a resident token.
type Claims struct {
	ResidentID string `json:"resident_id"`
	PassportNo string `json:"passport_no"`
	Type       string `json:"type"` // "agent" or "human"
}

// Keeper seals and opens resident tokens with a fixed 32-byte key.
type Keeper struct {
	key [32]byte
}

// NewKeeper builds a Keeper from a hex-encoded 32-byte secret. An empty
// secret gets a random key, which invalidates outstanding tokens on restart;
// fine for development, set auth.token_secret in production.
func NewKeeper(hexSecret string) (*Keeper, error) {
	k := &Keeper{}
	if hexSecret == "" {
		if _, err := rand.Read(k.key[:]); err != nil {
			return nil, fmt.Errorf("generate token key: %w", err)
		}
		return k, nil
	}
	raw, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("decode token secret: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("token secret must be 32 bytes, got %d", len(raw))
	}
	copy(k.key[:], raw)
	return k, nil
}

// Mint seals claims into an opaque token string.
func (k *Keeper) Mint(c Claims) (string, error) {
	plain, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &k.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Verify opens a token and returns the claims. Any malformed, truncated or
// tampered token yields ErrInvalidToken; callers never learn more.
func (k *Keeper) Verify(token string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return Claims{}, ErrInvalidToken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k.key)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	var c Claims
	if err := json.Unmarshal(plain, &c); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if c.ResidentID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	k, err := NewKeeper("")
	require.NoError(t, err)

	in := Claims{ResidentID: "r-123", PassportNo: "OC-0000001", Type: "agent"}
	tok, err := k.Mint(in)
	require.NoError(t, err)

	out, err := k.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVerifyRejectsTampered(t *testing.T) {
	k, err := NewKeeper("")
	require.NoError(t, err)
	tok, err := k.Mint(Claims{ResidentID: "r-1", PassportNo: "OC-0000002", Type: "agent"})
	require.NoError(t, err)

	// Flip a character somewhere past the nonce.
	mid := len(tok) / 2
	flipped := tok[:mid] + strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, tok[mid:mid+1]) + tok[mid+1:]

	_, err = k.Verify(flipped)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	k, err := NewKeeper("")
	require.NoError(t, err)
	for _, tok := range []string{"", "xx", "not a token at all", "AAAA"} {
		_, err := k.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestKeeperFromHexSecret(t *testing.T) {
	secret := strings.Repeat("ab", 32)
	k1, err := NewKeeper(secret)
	require.NoError(t, err)
	k2, err := NewKeeper(secret)
	require.NoError(t, err)

	tok, err := k1.Mint(Claims{ResidentID: "r-9", PassportNo: "OC-0000009", Type: "human"})
	require.NoError(t, err)

	// Same secret opens tokens minted by another keeper instance.
	c, err := k2.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "r-9", c.ResidentID)
}

func TestKeeperRejectsBadSecret(t *testing.T) {
	_, err := NewKeeper("zznothex")
	assert.Error(t, err)
	_, err = NewKeeper("abcd") // too short
	assert.Error(t, err)
}

package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret:     []byte("test-secret-test-secret-32bytes!"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return c
}

func TestNewCodecValidation(t *testing.T) {
	_, err := NewCodec(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.Error(t, err, "empty secret must be rejected")

	_, err = NewCodec(Config{Secret: []byte("s"), RefreshTTL: time.Hour})
	assert.Error(t, err, "zero access TTL must be rejected")
}

func TestAccessSignVerify(t *testing.T) {
	c := newTestCodec(t)

	signed, err := c.SignAccess("a@x.com", 1, "jti-1")
	require.NoError(t, err)

	claims, err := c.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "jti-1", claims.ID)
}

func TestRefreshSignVerify(t *testing.T) {
	c := newTestCodec(t)

	signed, err := c.SignRefresh(42, "jti-r")
	require.NoError(t, err)

	claims, err := c.VerifyRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "jti-r", claims.ID)
}

func TestVerifyExpired(t *testing.T) {
	c, err := NewCodec(Config{
		Secret:     []byte("test-secret-test-secret-32bytes!"),
		AccessTTL:  time.Nanosecond,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	signed, err := c.SignAccess("a@x.com", 1, "jti-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = c.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyBadSignature(t *testing.T) {
	c := newTestCodec(t)

	other, err := NewCodec(Config{
		Secret:     []byte("another-secret-entirely-32bytes!"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	signed, err := other.SignAccess("a@x.com", 1, "jti-1")
	require.NoError(t, err)

	_, err = c.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMalformed(t *testing.T) {
	c := newTestCodec(t)

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := c.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrMalformed, "input: %q", tok)
	}
}

func TestClassTagRejectsCrossUse(t *testing.T) {
	c := newTestCodec(t)

	refresh, err := c.SignRefresh(1, "jti-r")
	require.NoError(t, err)
	_, err = c.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrMalformed, "refresh token must not verify as access")

	access, err := c.SignAccess("a@x.com", 1, "jti-a")
	require.NoError(t, err)
	_, err = c.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrMalformed, "access token must not verify as refresh")
}

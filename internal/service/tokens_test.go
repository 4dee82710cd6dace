package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

func TestTokenPairRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	u := &models.User{ID: 42, Email: "staff@example.com", IsStaff: true}

	access, refresh, err := issuer.Pair(u)
	require.NoError(t, err)

	p, err := issuer.Verify(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: 42, Email: "staff@example.com", IsStaff: true}, p)

	_, err = issuer.Verify(refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	p, err = issuer.Verify(refresh, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
}

func TestTokenExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	start := time.Now()
	issuer.now = func() time.Time { return start }

	access, _, err := issuer.Pair(&models.User{ID: 1})
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = issuer.Verify(access, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongSecret(t *testing.T) {
	access, _, err := NewTokenIssuer("one", time.Minute, time.Hour).Pair(&models.User{ID: 1})
	require.NoError(t, err)

	_, err = NewTokenIssuer("two", time.Minute, time.Hour).Verify(access, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenIssuer("one", time.Minute, time.Hour).Verify("garbage", TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("test-secret-key", 7*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)

	token, expiresAt, err := issuer.Issue(Principal{ID: 42, Role: RoleCustomer})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, time.Minute)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, RoleCustomer, p.Role)
}

func TestTokenIssuer_AdminTokensUseShorterTTL(t *testing.T) {
	issuer := newTestIssuer(t)

	_, expiresAt, err := issuer.Issue(Principal{ID: 1, Role: RoleSuperAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer(t)
	issued := time.Now().Add(-8 * 24 * time.Hour)
	issuer.now = func() time.Time { return issued }

	token, _, err := issuer.Issue(Principal{ID: 7, Role: RoleCustomer})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.Issue(Principal{ID: 7, Role: RoleCustomer})
	require.NoError(t, err)

	other, err := NewTokenIssuer("another-secret", time.Hour, time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_RejectsUnknownRoleAndNoneAlg(t *testing.T) {
	issuer := newTestIssuer(t)
	exp := time.Now().Add(time.Hour).Unix()

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": 3, "role": "root", "exp": exp})
	signed, err := badRole.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)
	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": 3, "role": "admin", "exp": exp})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(none)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_LegacyRoleSpellingNormalized(t *testing.T) {
	issuer := newTestIssuer(t)
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id": 9, "role": "super admin", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := legacy.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	p, err := issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, p.Role)
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour, time.Hour)
	assert.Error(t, err)
	_, err = NewTokenIssuer("secret", 0, time.Hour)
	assert.Error(t, err)
}

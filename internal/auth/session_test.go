// internal/auth/session_test.go
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticate(t *testing.T) {
	a := New("s3cret", time.Hour)
	token, err := a.CreateJWT(AdminSubject)
	require.NoError(t, err)

	sub, err := a.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, sub)
}

func TestAuthenticateRejectsOtherSecret(t *testing.T) {
	token, err := New("one", 0).CreateJWT(AdminSubject)
	require.NoError(t, err)

	_, err = New("two", 0).AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpired(t *testing.T) {
	a := New("s3cret", time.Minute)
	issued := time.Now()
	a.now = func() time.Time { return issued }
	token, err := a.CreateJWT(AdminSubject)
	require.NoError(t, err)

	a.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = a.AuthenticateJWT(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthenticateRejectsOtherAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": AdminSubject})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = New("s3cret", 0).AuthenticateJWT(s)
	assert.Error(t, err)
}

func TestDisabledWithoutSecret(t *testing.T) {
	a := New("", time.Hour)
	assert.False(t, a.Enabled())

	_, err := a.CreateJWT(AdminSubject)
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = a.AuthenticateJWT("x.y.z")
	assert.ErrorIs(t, err, ErrNoSecret)

	var nilAuth *Authenticator
	assert.False(t, nilAuth.Enabled())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

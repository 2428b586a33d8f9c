package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	uid, ok := Static("u1").CurrentUserID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)

	_, ok = Static("").CurrentUserID(context.Background())
	assert.False(t, ok)

	_, err := Require(context.Background(), Static(""))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDevTokenRoundTrip(t *testing.T) {
	token, err := IssueDevToken("s3cret", "u1", time.Hour)
	require.NoError(t, err)

	uid, ok := NewDevToken("s3cret", token, nil).CurrentUserID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)
}

func TestDevTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueDevToken("s3cret", "u1", 0)
	require.NoError(t, err)

	_, ok := NewDevToken("other", token, nil).CurrentUserID(context.Background())
	assert.False(t, ok)
}

func TestDevTokenRejectsExpired(t *testing.T) {
	claims := jwt.MapClaims{"uid": "u1", "exp": time.Now().Add(-time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ParseDevToken([]byte("s3cret"), token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestDevTokenRequiresUID(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ParseDevToken([]byte("s3cret"), token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}

type fakeVerifier struct {
	uid string
	err error
}

func (f fakeVerifier) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Token{UID: f.uid}, nil
}

func TestFirebaseToken(t *testing.T) {
	ctx := context.Background()

	uid, ok := NewFirebaseToken(fakeVerifier{uid: "u1"}, "id-token", nil).CurrentUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)

	_, ok = NewFirebaseToken(fakeVerifier{err: errors.New("expired")}, "id-token", nil).CurrentUserID(ctx)
	assert.False(t, ok)

	_, ok = NewFirebaseToken(fakeVerifier{uid: "u1"}, "", nil).CurrentUserID(ctx)
	assert.False(t, ok)
}

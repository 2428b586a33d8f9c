// Package identity answers who the signed-in user is. Every provider
// reports ("", false) when nobody is signed in; callers treat that as a
// no-op, not as a failure.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firebase.google.com/go/auth"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrNotLoggedIn is returned by Require when no user is signed in.
var ErrNotLoggedIn = errors.New("not logged in")

// Provider supplies the current user identifier.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// Require returns the current user id or ErrNotLoggedIn.
func Require(ctx context.Context, p Provider) (string, error) {
	uid, ok := p.CurrentUserID(ctx)
	if !ok {
		return "", ErrNotLoggedIn
	}
	return uid, nil
}

// Static is a fixed user id. The empty Static means signed out.
type Static string

func (s Static) CurrentUserID(context.Context) (string, bool) {
	return string(s), s != ""
}

// TokenVerifier checks Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseToken resolves the user from a Firebase ID token.
type FirebaseToken struct {
	verifier TokenVerifier
	idToken  string
	logger   *zap.Logger
}

// NewFirebaseToken creates a provider for idToken.
func NewFirebaseToken(v TokenVerifier, idToken string, logger *zap.Logger) *FirebaseToken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirebaseToken{verifier: v, idToken: idToken, logger: logger}
}

func (f *FirebaseToken) CurrentUserID(ctx context.Context) (string, bool) {
	if f.idToken == "" {
		return "", false
	}
	tok, err := f.verifier.VerifyIDToken(ctx, f.idToken)
	if err != nil {
		f.logger.Warn("rejected firebase id token", zap.Error(err))
		return "", false
	}
	return tok.UID, tok.UID != ""
}

// DevToken resolves the user from an HMAC-signed JWT carrying a "uid"
// claim. It stands in for Firebase Auth against the memory backend.
type DevToken struct {
	secret []byte
	token  string
	logger *zap.Logger
}

// NewDevToken creates a provider for token signed with secret.
func NewDevToken(secret, token string, logger *zap.Logger) *DevToken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DevToken{secret: []byte(secret), token: token, logger: logger}
}

func (d *DevToken) CurrentUserID(context.Context) (string, bool) {
	if d.token == "" {
		return "", false
	}
	uid, err := ParseDevToken(d.secret, d.token)
	if err != nil {
		d.logger.Warn("rejected dev token", zap.Error(err))
		return "", false
	}
	return uid, true
}

// IssueDevToken signs a dev token for uid that expires after ttl. A
// non-positive ttl issues a token without expiry.
func IssueDevToken(secret, uid string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("dev secret is empty")
	}
	claims := jwt.MapClaims{"uid": uid, "iat": time.Now().Unix()}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseDevToken validates token and returns its uid claim.
func ParseDevToken(secret []byte, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse dev token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return "", fmt.Errorf("%w: uid missing", jwt.ErrTokenInvalidClaims)
	}
	return uid, nil
}

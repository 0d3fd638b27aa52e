package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when a request carries no valid login cookie.
var ErrNoSession = errors.New("not logged in")

// Signer issues and verifies login cookies. The cookie holds an HS256 JWT
// whose subject is the user name.
type Signer struct {
	name   string
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewSigner builds a Signer from the cookie settings.
func NewSigner(c Cookie) *Signer {
	return &Signer{
		name:   c.Name,
		key:    []byte(c.Key),
		expiry: time.Duration(c.ExpiryDays * float64(24*time.Hour)),
		now:    time.Now,
	}
}

// CookieName returns the name of the login cookie.
func (s *Signer) CookieName() string { return s.name }

// Issue returns a login cookie for username.
func (s *Signer) Issue(username string) (*http.Cookie, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("signing login cookie: %w", err)
	}
	return &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(s.expiry),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns a cookie that removes the login cookie.
func (s *Signer) Clear() *http.Cookie {
	return &http.Cookie{Name: s.name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
}

// Verify returns the user name carried by the login cookie of r.
func (s *Signer) Verify(r *http.Request) (string, error) {
	c, err := r.Cookie(s.name)
	if err != nil {
		return "", ErrNoSession
	}
	return s.Parse(c.Value)
}

// Parse verifies a token and returns its subject.
func (s *Signer) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Subject == "" {
		return "", ErrNoSession
	}
	return claims.Subject, nil
}

package service

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrLoginDisabled      = errors.New("admin login is disabled")
)

// AdminAuth issues and verifies the bearer tokens that gate the admin
// channel. Credentials come from configuration: a single username and a
// bcrypt password hash.
type AdminAuth struct {
	username     string
	passwordHash []byte
	secret       []byte

	now func() time.Time
}

func NewAdminAuth(username, passwordHash, secret string) *AdminAuth {
	return &AdminAuth{
		username:     username,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		now:          time.Now,
	}
}

// Login checks the credential pair and returns a fresh token. The
// username comparison is constant time so probing cannot distinguish a
// wrong username from a wrong password.
func (a *AdminAuth) Login(username, password string) (string, error) {
	if len(a.passwordHash) == 0 {
		return "", ErrLoginDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", ErrInvalidCredentials
	}
	return a.issueToken()
}

func (a *AdminAuth) issueToken() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": a.username,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyToken checks the signature, method, and expiry of a bearer
// token presented at the admin handshake.
func (a *AdminAuth) VerifyToken(tokenString string) error {
	if tokenString == "" {
		return ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return a.now() }))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

const issuer = "smartbookmark"

var (
	// ErrInvalidSession covers every token that cannot be trusted: malformed,
	// expired or signed with another key.
	ErrInvalidSession = errors.New("auth: invalid session")
	ErrEmptySecret    = errors.New("auth: session secret is empty")
)

// Session is an established, verified session.
type Session struct {
	OwnerID   string    `json:"owner_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a session for ownerID.
func (s *Sessions) Issue(ownerID, email string) (Session, error) {
	if ownerID == "" {
		return Session{}, fmt.Errorf("issue session: %w", ErrInvalidSession)
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   ownerID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{OwnerID: ownerID, Email: email, Token: signed, ExpiresAt: exp}, nil
}

// Verify parses token and returns the session it carries.
func (s *Sessions) Verify(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidSession
	}
	parser := gojwt.NewParser(
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)
	var c claims
	if _, err := parser.ParseWithClaims(token, &c, func(*gojwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return Session{
		OwnerID:   c.Subject,
		Email:     c.Email,
		Token:     token,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// TTL is the lifetime of issued sessions.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"death2data.org/internal/ids"
)

const issuer = "d2d-registry"

// SessionClaims are the JWT claims of a short-lived session token.
type SessionClaims struct {
	Email string `json:"email"`
	Tier  string `json:"tier"`
	jwt.RegisteredClaims
}

// Service implements signup and bearer-token resolution. The signing secret
// is injected at construction; nothing is read from ambient global state.
type Service struct {
	store  Store
	secret []byte
	now    func() time.Time
}

// NewService constructs the auth service. secret signs session JWTs and may
// be empty when sessions are disabled.
func NewService(store Store, secret []byte) *Service {
	return &Service{store: store, secret: secret, now: time.Now}
}

// Signup creates an account and returns the raw access token exactly once.
// Only the token's SHA-256 is stored.
func (s *Service) Signup(ctx context.Context, email string) (string, User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", User{}, ErrInvalidInput
	}

	token, err := newToken()
	if err != nil {
		return "", User{}, err
	}
	u := User{
		ID:        ids.NewContentID(),
		Email:     email,
		TokenHash: HashToken(token),
		Tier:      DefaultTier,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// Resolve maps an opaque bearer token to its principal, or ErrInvalidToken.
func (s *Service) Resolve(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	u, err := s.store.UserByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: u.ID, Email: u.Email, Tier: u.Tier}, nil
}

// Session exchanges a resolved principal for a short-lived HS256 JWT so
// subsequent requests need no database lookup.
func (s *Service) Session(principal Principal, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("auth: session secret is not configured")
	}
	if ttl <= 0 {
		return "", time.Time{}, ErrInvalidInput
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		Email: principal.Email,
		Tier:  principal.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ids.NewContentID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSession validates a session JWT and rebuilds its principal.
func (s *Service) ParseSession(token string) (Principal, error) {
	if len(s.secret) == 0 {
		return Principal{}, ErrInvalidToken
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: claims.Subject, Email: claims.Email, Tier: claims.Tier}, nil
}

// Authenticate resolves either token form: session JWTs are tried first,
// then the opaque signup token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if principal, err := s.ParseSession(token); err == nil {
		return principal, nil
	}
	return s.Resolve(ctx, token)
}

// Delete removes the account row. Cascades are the caller's concern.
func (s *Service) Delete(ctx context.Context, userID string) error {
	return s.store.DeleteUser(ctx, userID)
}

// User returns the stored account.
func (s *Service) User(ctx context.Context, userID string) (User, error) {
	return s.store.UserByID(ctx, userID)
}

// CountUsers returns the total number of accounts.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	return s.store.CountUsers(ctx)
}

// HashToken is the stored form of an access token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

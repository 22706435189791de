package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthorResolver maps an Authorization header value to an author id. It
// returns "" for anonymous or unverifiable requests.
type AuthorResolver interface {
	ResolveAuthorID(ctx context.Context, authorization string) string
}

// Anonymous resolves every request to no author.
type Anonymous struct{}

// ResolveAuthorID always returns "".
func (Anonymous) ResolveAuthorID(context.Context, string) string {
	return ""
}

// TokenAuthorResolver verifies HS256 bearer tokens and uses their subject as
// the author id.
type TokenAuthorResolver struct {
	key []byte
	now func() time.Time
}

// NewTokenAuthorResolver builds a resolver for tokens signed with key.
func NewTokenAuthorResolver(key []byte, now func() time.Time) (*TokenAuthorResolver, error) {
	if len(key) == 0 {
		return nil, errors.New("token signing key is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenAuthorResolver{key: key, now: now}, nil
}

// ResolveAuthorID returns the subject of a valid, unexpired bearer token.
func (r *TokenAuthorResolver) ResolveAuthorID(_ context.Context, authorization string) string {
	if r == nil {
		return ""
	}
	token, ok := bearerToken(authorization)
	if !ok {
		return ""
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(claims.Subject)
}

// IssueToken signs a token for subject that expires after ttl.
func (r *TokenAuthorResolver) IssueToken(subject string, ttl time.Duration) (string, error) {
	if r == nil {
		return "", errors.New("token resolver is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
}

func bearerToken(authorization string) (string, bool) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stayhub/internal/domain/auth"
)

var (
	ErrMissingSecret = errors.New("token: signing secret is empty")
	ErrInvalidToken  = errors.New("token: invalid bearer token")
)

const defaultTokenTTL = 24 * time.Hour

// Claims carries the caller identity. Users are owned by the identity
// service; this service only reads the subject and roles.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies HS256 bearer tokens.
type JWTService struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func NewJWTService(secret, issuer string) (*JWTService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &JWTService{Secret: []byte(secret), Issuer: issuer, TTL: defaultTokenTTL, Now: time.Now}, nil
}

// Issue is used by tests and local tooling to mint tokens.
func (s *JWTService) Issue(p auth.Principal) (string, error) {
	now := s.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, string(r))
	}
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Verify parses a token and maps it to a principal. Unknown roles are dropped.
func (s *JWTService) Verify(raw string) (auth.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return auth.Principal{}, ErrInvalidToken
	}
	p := auth.Principal{UserID: claims.Subject}
	for _, name := range claims.Roles {
		if role, ok := auth.ParseRole(name); ok {
			p.Roles = append(p.Roles, role)
		}
	}
	return p, nil
}

func (s *JWTService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

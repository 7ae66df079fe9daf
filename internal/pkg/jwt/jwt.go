package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"salonbook/internal/pkg/identity"
)

// Service verifies tokens issued by the identity provider. GenerateToken exists
// for local tooling and tests; production tokens are minted elsewhere.
type Service struct {
	secret []byte
	ttl    time.Duration
}

type Claims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	ProviderID int64  `json:"provider_id,omitempty"`
	jwtlib.RegisteredClaims
}

func New(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (s *Service) GenerateToken(actor identity.Actor) (string, error) {
	claims := Claims{
		UserID:     actor.UserID,
		Role:       string(actor.Role),
		ProviderID: actor.ProviderID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}

func (c *Claims) Actor() identity.Actor {
	return identity.Actor{UserID: c.UserID, Role: identity.Role(c.Role), ProviderID: c.ProviderID}
}

package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const pageTokenInfo = "s4 page token v1"

// PageClaims carries a listing cursor bound to the owner it was issued for.
type PageClaims struct {
	Owner      string    `json:"own"`
	UploadedAt time.Time `json:"uat"`
	Key        string    `json:"key"`
	jwt.RegisteredClaims
}

// PageTokenSigner signs listing cursors with a key derived from the JWT secret, so a page
// token can never be replayed as a bearer token or the other way round.
type PageTokenSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewPageTokenSigner(secret string, ttl time.Duration) (*PageTokenSigner, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(pageTokenInfo)), key); err != nil {
		return nil, fmt.Errorf("derive page token key: %w", err)
	}
	return &PageTokenSigner{key: key, ttl: ttl, now: time.Now}, nil
}

func (s *PageTokenSigner) Sign(owner string, uploadedAt time.Time, key string) (string, error) {
	now := s.now()
	claims := PageClaims{
		Owner:      owner,
		UploadedAt: uploadedAt.UTC(),
		Key:        key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature and expiry and returns the claims. The caller checks the owner.
func (s *PageTokenSigner) Verify(token string) (*PageClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &PageClaims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*PageClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid page token")
	}
	return claims, nil
}

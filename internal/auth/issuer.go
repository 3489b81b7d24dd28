package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/plant-maintenance/internal/model"
)

// AccessClaims is the signed payload of an access token. The subject
// carries the user ID; email, role and plant ride alongside so that
// downstream consumers never need a database round trip to authorize a
// request. Verification is stateless: signature plus expiry, no
// revocation list, so a compromised token is bounded only by its TTL.
type AccessClaims struct {
	Email string  `json:"email"`
	Role  string  `json:"role"`
	Plant *string `json:"plant,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens and generates the
// opaque refresh-token secrets. It has no side effects and no storage.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
}

func NewIssuer(secret string, accessTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL}
}

// IssueAccessToken builds and signs a JWT for the given identity.
// Deterministic given identity and now.
func (i *Issuer) IssueAccessToken(id model.Identity, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.accessTTL)
	claims := AccessClaims{
		Email: id.Email,
		Role:  id.Role,
		Plant: id.AssignedPlant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(id.ID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken parses and validates a signed token and returns the
// identity it carries. Expired tokens yield ErrTokenExpired; anything
// else wrong with the token (bad signature, wrong algorithm, malformed)
// yields ErrInvalidToken.
func (i *Issuer) VerifyAccessToken(token string) (model.Identity, error) {
	var claims AccessClaims
	tok, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, ErrInvalidToken
	}
	if !tok.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}
	return model.Identity{ID: uid, Email: claims.Email, Role: claims.Role, AssignedPlant: claims.Plant}, nil
}

// NewRefreshSecret returns a cryptographically strong opaque secret:
// 32 random bytes hex encoded (256 bits of entropy, 64 characters).
// Never derived from user data; the value is returned raw to the client
// and only its hash is persisted.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashRefreshSecret returns the SHA-256 hex digest of a raw refresh
// secret. The database stores only this digest so stolen rows cannot be
// replayed as tokens.
func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

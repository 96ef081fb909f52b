package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issuer is the iss claim of every token.
const issuer = "graylogic-fx"

// defaultTTLMinutes applies when GenerateToken is given a non-positive TTL.
const defaultTTLMinutes = 60

// CustomClaims extends the registered claims with the client's role and
// optional process identity.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
	PID  int  `json:"pid,omitempty"`
	UID  int  `json:"uid,omitempty"`
}

// Identity returns the identity carried by the claims.
func (c *CustomClaims) Identity() Identity {
	return Identity{ClientID: c.Subject, Role: c.Role, PID: c.PID, UID: c.UID}
}

// GenerateToken signs an HS256 token for id.
func GenerateToken(id Identity, secret string, ttlMinutes int) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if !IsValidClientID(id.ClientID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidClientID, id.ClientID)
	}
	if !IsValidRole(id.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, id.Role)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ClientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Role: id.Role,
		PID:  id.PID,
		UID:  id.UID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature, expiry, issuer and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

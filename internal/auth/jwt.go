package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"deptattendance/internal/attendance"
)

// Token is a signed session token and its expiry.
type Token struct {
	AccessToken string
	ID          string
	ExpiresAt   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Role     attendance.Role `json:"role"`
	Username string          `json:"username"`
	jwt.RegisteredClaims
}

// Session returns the identity carried by the claims.
func (c Claims) Session() attendance.Session {
	return attendance.Session{Role: c.Role, Username: c.Username}
}

// Issue signs a session token for sess valid for ttl.
func Issue(sess attendance.Session, issuer, key string, ttl time.Duration) (Token, error) {
	now := time.Now()
	exp := now.Add(ttl)
	id := uuid.NewString()

	claims := Claims{
		Role:     sess.Role,
		Username: sess.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   sess.Username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, errors.Wrap(err, "signing token")
	}
	return Token{AccessToken: signed, ID: id, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.ID == "" {
		return Claims{}, errors.New("token has no id")
	}
	if _, ok := attendance.ParseRole(string(claims.Role)); !ok {
		return Claims{}, errors.Errorf("unknown role %q", claims.Role)
	}
	return *claims, nil
}

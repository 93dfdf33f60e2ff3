package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parlor/pkg/types"
)

// Claims is the data carried inside a signed token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier mints and validates the HS256 tokens that tie an HTTP login
// to a websocket handshake. The coordination core never sees tokens,
// only the Identity a verifier produces.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier creates a verifier with the given signing secret and
// token lifetime.
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates a signed token for a username.
func (v *Verifier) GenerateToken(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "parlor",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// VerifyToken validates a token's signature and expiry, returning the
// Identity it vouches for.
func (v *Verifier) VerifyToken(tokenString string) (types.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningMethod
		}
		return v.secret, nil
	})
	if err != nil {
		return types.Identity{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return types.Identity{}, jwt.ErrSignatureInvalid
	}
	return types.Identity{Name: claims.Username}, nil
}

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/hilthontt/haven/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the principal attributes the identity provider signs.
type Claims struct {
	jwt.RegisteredClaims
	Role        domain.Role `json:"role"`
	DisplayName string      `json:"name"`
	Anonymous   bool        `json:"anon,omitempty"`
}

type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
	now           func() time.Time
}

func NewJWTManager(secret, issuer string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secret),
		issuer:        issuer,
		tokenDuration: duration,
		now:           time.Now,
	}
}

// Generate signs a token for p.
func (m *JWTManager) Generate(p domain.Principal) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
		},
		Role:        p.Role,
		DisplayName: p.DisplayName,
		Anonymous:   p.Anonymous,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses accessToken and resolves the principal it names.
func (m *JWTManager) Verify(accessToken string) (domain.Principal, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return domain.Principal{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	role := claims.Role
	if !role.Valid() {
		role = domain.RoleUser
	}

	return domain.Principal{
		ID:          claims.Subject,
		Role:        role,
		DisplayName: claims.DisplayName,
		Anonymous:   claims.Anonymous,
	}, nil
}

// ExtractTokenFromHeader reads a bearer token. Websocket clients may pass it as ?token= instead.
func ExtractTokenFromHeader(r *http.Request) (string, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid Authorization header")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.New("missing Authorization header")
}

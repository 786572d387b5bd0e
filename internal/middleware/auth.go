package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "typ" claim. A refresh token is never accepted
// as a bearer token and vice versa.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenState   = "oauth_state"
)

var ErrInvalidToken = errors.New("invalid token")

type ctxKey int

const (
	userIDKey ctxKey = iota
	holderKey
)

// userHolder lets an outer middleware see the user resolved by an inner one.
type userHolder struct {
	id  uuid.UUID
	set bool
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthMiddleware(secret []byte) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: secret, now: time.Now}
}

// Issue signs an HS256 token of the given kind for subject.
func (m *AuthMiddleware) Issue(subject uuid.UUID, kind string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
}

// Parse validates tokenStr and returns its subject. The token must be of
// the given kind.
func (m *AuthMiddleware) Parse(tokenStr, kind string) (uuid.UUID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.jwtSecret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Type != kind {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := m.Parse(strings.TrimPrefix(authz, "Bearer "), TokenAccess)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if h, ok := r.Context().Value(holderKey).(*userHolder); ok {
			h.id, h.set = userID, true
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// UserID returns the authenticated user set by RequireAuth.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ClientClaims are the bearer token claims used to identify a sync caller.
type ClientClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
}

// ClientResolver derives the identity admission control counts requests
// against. Resolution order:
//  1. client_id (else sub) of a bearer token verified with the shared secret
//  2. X-Client-ID header, only when the header is trusted
//  3. the caller's IP address
//
// Identities are prefixed with their source so a header value can never
// collide with a verified token identity.
type ClientResolver struct {
	secret      []byte
	trustHeader bool
}

func NewClientResolver(secret string, trustHeader bool) *ClientResolver {
	r := &ClientResolver{trustHeader: trustHeader}
	if secret != "" {
		r.secret = []byte(secret)
	}
	return r
}

// Resolve returns the client identity for the request.
func (r *ClientResolver) Resolve(c echo.Context) string {
	if id := r.fromToken(c.Request().Header.Get(echo.HeaderAuthorization)); id != "" {
		return "token:" + id
	}
	if r.trustHeader {
		if h := strings.TrimSpace(c.Request().Header.Get("X-Client-ID")); h != "" {
			return "header:" + h
		}
	}
	return "ip:" + c.RealIP()
}

func (r *ClientResolver) fromToken(authHeader string) string {
	if len(r.secret) == 0 || authHeader == "" {
		return ""
	}
	scheme, tokenStr, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	claims := &ClientClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ""
	}

	if claims.ClientID != "" {
		return claims.ClientID
	}
	return claims.Subject
}

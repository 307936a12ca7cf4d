// Package identity resolve o usuário de uma request a partir do token de
// sessão emitido pelo backend. Só lê o token; emissão fica fora daqui.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("identity: invalid session token")

// JWTResolver extrai o "sub" de um JWT HS256 vindo do header Authorization
// (Bearer) ou do cookie de sessão.
type JWTResolver struct {
	secret []byte
	cookie string
	parser *jwt.Parser
}

type Option func(*JWTResolver)

func WithCookie(name string) Option {
	return func(r *JWTResolver) { r.cookie = name }
}

// WithIssuer exige o claim "iss".
func WithIssuer(iss string) Option {
	return func(r *JWTResolver) {
		r.parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(iss))
	}
}

func NewJWTResolver(secret string, opts ...Option) *JWTResolver {
	r := &JWTResolver{
		secret: []byte(secret),
		cookie: "session",
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserID devolve "" sem erro quando não há token (anônimo).
func (r *JWTResolver) UserID(req *http.Request) (string, error) {
	raw := bearer(req.Header.Get("Authorization"))
	if raw == "" && r.cookie != "" {
		if c, err := req.Cookie(r.cookie); err == nil {
			raw = strings.TrimSpace(c.Value)
		}
	}
	if raw == "" {
		return "", nil
	}

	claims := jwt.RegisteredClaims{}
	_, err := r.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return strings.TrimSpace(claims.Subject), nil
}

func bearer(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
)

const (
	contextTokenKey = "userToken"
	tokenAudience   = "Masomo Live"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// Actor returns the caller the claims were issued for.
func (c Claims) Actor() core.Actor {
	return core.Actor{
		ID:      c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		IsAdmin: c.IsAdmin,
	}
}

// NewClaims returns claims for actor, valid for conf.Server.JWTExpirationDelta.
func NewClaims(actor core.Actor, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   actor.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:   actor.Email,
		Name:    actor.Name,
		IsAdmin: actor.IsAdmin,
	}
}

// jwtConfig returns the JWT auth middleware config. Tokens are signed with the app secret key.
func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	conf := jwtConfig(secretKey)
	method := jwt.GetSigningMethod(conf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(conf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextActor(ctx echo.Context) (core.Actor, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Actor{}, err
	}
	if claims.Subject == "" {
		return core.Actor{}, errUnauthorized
	}
	return claims.Actor(), nil
}

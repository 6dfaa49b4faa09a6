package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"github.com/statorio/stator/pkg/engine"
)

// DefaultClaimsKey is the request user-value under which verified
// claims are stored.
const DefaultClaimsKey = "auth.claims"

// AuthConfig configures the bearer-token middleware.
type AuthConfig struct {
	// Secret is the HMAC key used to verify tokens.
	Secret string

	// ValidMethods restricts accepted signing algorithms. Defaults to
	// HS256 to avoid alg-confusion attacks.
	ValidMethods []string

	// Issuer requires a matching iss claim when set.
	Issuer string

	// Audience requires a matching aud claim when set.
	Audience []string

	// Leeway allows clock skew for exp/nbf/iat validation.
	Leeway time.Duration

	// ClaimsKey overrides where claims are stored on the request.
	ClaimsKey string

	// AuthScheme is the Authorization scheme. Defaults to Bearer.
	AuthScheme string

	// SkipPaths bypass authentication, matched by prefix.
	SkipPaths []string
}

// DefaultAuthConfig returns the standard HS256 bearer setup.
func DefaultAuthConfig(secret string) AuthConfig {
	return AuthConfig{
		Secret:       secret,
		ValidMethods: []string{"HS256"},
		ClaimsKey:    DefaultClaimsKey,
		AuthScheme:   "Bearer",
		SkipPaths:    []string{"/healthz"},
	}
}

// Auth returns middleware that verifies a bearer token and stores its
// claims on the request. Requests without a valid token get a 401
// envelope.
func Auth(cfg AuthConfig) Middleware {
	if cfg.Secret == "" {
		panic("httpapi: Auth requires a secret")
	}

	validMethods := cfg.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}
	claimsKey := cfg.ClaimsKey
	if claimsKey == "" {
		claimsKey = DefaultClaimsKey
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(cfg.Secret), nil
	}

	options := make([]jwt.ParserOption, 0, 4)
	options = append(options, jwt.WithValidMethods(validMethods))
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		options = append(options, jwt.WithAudience(cfg.Audience...))
	}

	return func(next Handler) Handler {
		return func(ctx *fasthttp.RequestCtx) error {
			path := string(ctx.Path())
			for _, skip := range cfg.SkipPaths {
				if path == skip || strings.HasPrefix(path, skip) {
					return next(ctx)
				}
			}

			header := string(ctx.Request.Header.Peek("Authorization"))
			if header == "" {
				return unauthorized(ctx, scheme)
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != scheme {
				return unauthorized(ctx, scheme)
			}

			token, err := jwt.ParseWithClaims(parts[1], jwt.MapClaims{}, keyFunc, options...)
			if err != nil || !token.Valid {
				return unauthorized(ctx, scheme)
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(ctx, scheme)
			}

			ctx.SetUserValue(claimsKey, claims)
			return next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx, scheme string) error {
	ctx.Response.Header.Set("WWW-Authenticate",
		fmt.Sprintf(`%s realm="stator", error="invalid_token"`, scheme))
	writeJSON(ctx, fasthttp.StatusUnauthorized,
		failure("unauthorized", "invalid or missing token", nil))
	return nil
}

// ClaimsFromContext returns the verified claims stored by Auth.
// fasthttp request contexts satisfy context.Context, so this works
// both inside handlers and downstream of them.
func ClaimsFromContext(ctx context.Context, key string) (jwt.MapClaims, bool) {
	if key == "" {
		key = DefaultClaimsKey
	}
	claims, ok := ctx.Value(key).(jwt.MapClaims)
	return claims, ok
}

// SubjectFromClaims extracts the acting subject, trying the common
// claim names in order.
func SubjectFromClaims(claims jwt.MapClaims) (string, bool) {
	for _, name := range []string{"user_id", "sub", "id"} {
		if id, ok := claims[name].(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// JWTActorResolver adapts verified claims into the engine's actor
// attribution. The subject type comes from a subject_type claim when
// present.
func JWTActorResolver(claimsKey string) engine.ActorResolver {
	return func(ctx context.Context) (string, string, bool) {
		claims, ok := ClaimsFromContext(ctx, claimsKey)
		if !ok {
			return "", "", false
		}
		id, ok := SubjectFromClaims(claims)
		if !ok {
			return "", "", false
		}
		subjectType := "User"
		if typ, ok := claims["subject_type"].(string); ok && typ != "" {
			subjectType = typ
		}
		return id, subjectType, true
	}
}

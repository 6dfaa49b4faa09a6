package httpapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func authProbe(t *testing.T, cfg AuthConfig, method, uri, authHeader string) (*fasthttp.RequestCtx, bool) {
	t.Helper()

	var handled bool
	probe := func(ctx *fasthttp.RequestCtx) error {
		handled = true
		ctx.SetStatusCode(fasthttp.StatusOK)
		return nil
	}
	wrapped := Auth(cfg)(probe)

	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	if err := wrapped(ctx); err != nil {
		t.Fatalf("Failed to run middleware: %v", err)
	}
	return ctx, handled
}

func TestAuth_ValidToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	ctx, handled := authProbe(t, DefaultAuthConfig(testSecret),
		"POST", "/api/fsm/replay/history", "Bearer "+token)
	if !handled {
		t.Fatal("Expected the handler invoked")
	}

	claims, ok := ClaimsFromContext(ctx, "")
	if !ok {
		t.Fatal("Expected claims stored on the request")
	}
	if id, _ := SubjectFromClaims(claims); id != "u-7" {
		t.Errorf("Expected subject u-7, got %q", id)
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	ctx, handled := authProbe(t, DefaultAuthConfig(testSecret),
		"POST", "/api/fsm/replay/history", "")
	if handled {
		t.Fatal("Expected the handler skipped")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("WWW-Authenticate")); got == "" {
		t.Error("Expected a WWW-Authenticate challenge")
	}
}

func TestAuth_WrongScheme(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "u-7"})
	ctx, handled := authProbe(t, DefaultAuthConfig(testSecret),
		"POST", "/api/fsm/replay/history", "Basic "+token)
	if handled || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("Expected 401, got handled=%v status=%d", handled, ctx.Response.StatusCode())
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", jwt.MapClaims{"sub": "u-7"})
	ctx, handled := authProbe(t, DefaultAuthConfig(testSecret),
		"POST", "/api/fsm/replay/history", "Bearer "+token)
	if handled || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("Expected 401, got handled=%v status=%d", handled, ctx.Response.StatusCode())
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-7",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	ctx, handled := authProbe(t, DefaultAuthConfig(testSecret),
		"POST", "/api/fsm/replay/history", "Bearer "+token)
	if handled || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("Expected 401, got handled=%v status=%d", handled, ctx.Response.StatusCode())
	}
}

func TestAuth_IssuerMismatch(t *testing.T) {
	cfg := DefaultAuthConfig(testSecret)
	cfg.Issuer = "stator"

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-7",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	ctx, handled := authProbe(t, cfg, "POST", "/api/fsm/replay/history", "Bearer "+token)
	if handled || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("Expected 401, got handled=%v status=%d", handled, ctx.Response.StatusCode())
	}
}

func TestAuth_SkipPaths(t *testing.T) {
	_, handled := authProbe(t, DefaultAuthConfig(testSecret), "GET", "/healthz", "")
	if !handled {
		t.Error("Expected /healthz to bypass authentication")
	}
}

func TestAuth_EmptySecretPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic for an empty secret")
		}
	}()
	Auth(AuthConfig{})
}

func TestSubjectFromClaims_Order(t *testing.T) {
	claims := jwt.MapClaims{"user_id": "u-1", "sub": "u-2", "id": "u-3"}
	if id, ok := SubjectFromClaims(claims); !ok || id != "u-1" {
		t.Errorf("Expected user_id preferred, got %q", id)
	}

	delete(claims, "user_id")
	if id, _ := SubjectFromClaims(claims); id != "u-2" {
		t.Errorf("Expected sub next, got %q", id)
	}

	if _, ok := SubjectFromClaims(jwt.MapClaims{}); ok {
		t.Error("Expected no subject in empty claims")
	}
}

func TestJWTActorResolver(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue(DefaultClaimsKey, jwt.MapClaims{
		"sub":          "u-9",
		"subject_type": "Operator",
	})

	resolve := JWTActorResolver("")
	id, typ, ok := resolve(ctx)
	if !ok || id != "u-9" || typ != "Operator" {
		t.Errorf("Expected (u-9, Operator), got (%q, %q, %v)", id, typ, ok)
	}

	// Default subject type.
	ctx = &fasthttp.RequestCtx{}
	ctx.SetUserValue(DefaultClaimsKey, jwt.MapClaims{"sub": "u-9"})
	if _, typ, _ := resolve(ctx); typ != "User" {
		t.Errorf("Expected User default, got %q", typ)
	}

	// No claims at all.
	if _, _, ok := resolve(&fasthttp.RequestCtx{}); ok {
		t.Error("Expected no attribution without claims")
	}
}

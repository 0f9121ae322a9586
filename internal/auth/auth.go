// Package auth verifies recruiter identity tokens. In production these are
// Firebase ID tokens signed with Google's rotating RS256 keys; local
// deployments and tests use a shared HS256 secret.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

const (
	// FirebaseJWKSURL serves the public keys of Firebase ID tokens.
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	// SessionCookie is the cookie the hosted dashboard stores the ID token in.
	SessionCookie = "__session"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrBadToken     = errors.New("bad authorization header")
)

// FirebaseIssuer returns the issuer of ID tokens minted for projectID.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// Claims are the verified identity fields of a token.
type Claims struct {
	Subject string
	Email   string
}

// Verifier validates tokens.
type Verifier struct {
	jwks     *keyfunc.JWKS
	secret   []byte
	audience string
	issuer   string
	parser   *jwt.Parser
}

// NewJWKS creates a verifier for RS256 tokens signed by keys in jwks.
func NewJWKS(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	return &Verifier{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// NewHS256 creates a verifier for tokens signed with a shared secret.
func NewHS256(secret []byte, audience, issuer string) *Verifier {
	return &Verifier{
		secret:   secret,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// NewFirebase fetches the Firebase signing keys and keeps them refreshed in
// the background until ctx is done.
func NewFirebase(ctx context.Context, projectID, jwksURL string) (*Verifier, error) {
	if jwksURL == "" {
		jwksURL = FirebaseJWKSURL
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Warn("refresh jwks")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return NewJWKS(jwks, projectID, FirebaseIssuer(projectID)), nil
}

// Verify parses token and checks its signature, lifetime, audience and
// issuer.
func (v *Verifier) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	parsed, err := v.parser.Parse(token, v.key)
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, errors.New("token expired")
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return Claims{}, errors.New("invalid audience")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Claims{}, errors.New("invalid issuer")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)
	return Claims{Subject: sub, Email: email}, nil
}

func (v *Verifier) key(t *jwt.Token) (any, error) {
	if v.secret != nil {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, errors.New("jwks not configured")
	}
	return v.jwks.Keyfunc(t)
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// failing that from the session cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", ErrBadToken
		}
		return token, nil
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", ErrMissingToken
}

type ctxKey struct{}

// WithClaims returns a copy of ctx carrying c.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the claims stored by WithClaims.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

// RecruiterID returns the authenticated recruiter of ctx, or "".
func RecruiterID(ctx context.Context) string {
	c, _ := FromContext(ctx)
	return c.Subject
}

// Middleware verifies the token of every request and stores the claims in
// the request context. Failures are handed to onFail.
func Middleware(v *Verifier, onFail func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := TokenFromRequest(r)
			if err == nil {
				var c Claims
				if c, err = v.Verify(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), c)))
					return
				}
			}
			log.WithFields(log.Fields{"path": r.URL.Path, "error": err}).Debug("rejected request")
			onFail(w, r, err)
		})
	}
}

// Package auth verifies and issues the HS256 bearer tokens that identify actors.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookieName = "reelsync_session"
	AccessTokenParam  = "access_token"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims identify an actor. An empty Projects list grants every project.
type Claims struct {
	Projects []string `json:"projects,omitempty"`
	gojwt.RegisteredClaims
}

func (c *Claims) ActorID() string {
	return c.Subject
}

func (c *Claims) CanAccess(projectID string) bool {
	return len(c.Projects) == 0 || slices.Contains(c.Projects, projectID)
}

type Verifier struct {
	secret []byte
	issuer string
	parser *gojwt.Parser
}

func NewVerifier(secret, issuer string) *Verifier {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, gojwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: gojwt.NewParser(opts...),
	}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromRequest reads the token from the Authorization header, the
// access_token query parameter or the session cookie, in that order.
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return nil, ErrMissingToken
	}
	return v.Verify(token)
}

func TokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(token)
			return token, token != ""
		}
	}
	if token := r.URL.Query().Get(AccessTokenParam); token != "" {
		return token, true
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// Issue mints a token for actorID valid for ttl.
func Issue(secret, issuer, actorID string, projects []string, ttl time.Duration, now time.Time) (string, error) {
	if actorID == "" {
		return "", errors.New("actor id is required")
	}
	claims := Claims{
		Projects: projects,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

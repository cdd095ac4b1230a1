package web

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const sessionCookieName = "isolator_session"

var (
	errNoCredentials      = errors.New("missing bearer token")
	errAuthNotConfigured  = errors.New("authentication is not configured")
	errInvalidCredentials = errors.New("invalid bearer token")
)

// identity is who is calling: always a session, and a user when a valid bearer token was sent.
type identity struct {
	SessionID string
	UserID    string
}

// bearerToken returns the token from an "Authorization: Bearer" header, or "" when none was sent.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return header
	}
	return strings.TrimSpace(header[len(prefix):])
}

// userFromRequest returns the token subject, "" with errNoCredentials when no token was sent, or
// an error for a token that does not verify.
func (s *Service) userFromRequest(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", errNoCredentials
	}
	if s.options.JWTSecret == "" {
		return "", errAuthNotConfigured
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.options.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errors.Wrap(errInvalidCredentials, err.Error())
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.Wrap(errInvalidCredentials, "token has no subject")
	}
	return claims.Subject, nil
}

// sessionFromRequest returns the caller's session id, issuing a new session cookie when the request
// carries none or a malformed one.
func sessionFromRequest(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if id, err := uuid.Parse(cookie.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// identify resolves the caller. A missing token is anonymous; a bad one is an error.
func (s *Service) identify(w http.ResponseWriter, r *http.Request) (identity, error) {
	id := identity{SessionID: sessionFromRequest(w, r)}
	user, err := s.userFromRequest(r)
	switch {
	case errors.Is(err, errNoCredentials):
		return id, nil
	case err != nil:
		return id, err
	}
	id.UserID = user
	return id, nil
}

package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const userContextKey contextKey = "user"

// Credentials is the single operator account of the preview server.
type Credentials struct {
	Username     string
	PasswordHash []byte // bcrypt
}

// HashPassword returns the bcrypt hash stored in configuration.
// PRE: password is non-empty
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// BasicAuth returns middleware that challenges every request for creds.
// PRE: creds.PasswordHash is a bcrypt hash
// POST: the authenticated username is in the request context
func BasicAuth(creds Credentials, realm string) func(http.Handler) http.Handler {
	challenge := `Basic realm="` + realm + `", charset="UTF-8"`
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !creds.match(user, pass) {
				if ok {
					slog.Warn("auth_failed", "user", user, "remote_addr", r.RemoteAddr)
				}
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
		})
	}
}

// match compares both fields even when the username is wrong so timing does
// not reveal which one failed.
func (c Credentials) match(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(pass)) == nil
	return userOK && passOK
}

// UserFromContext returns the authenticated username.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userContextKey).(string)
	return user, ok
}

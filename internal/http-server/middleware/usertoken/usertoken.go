// Package usertoken forwards an end user's own upstream token.
package usertoken

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"

	"serenity/gateway/internal/lib/api/response"
	"serenity/gateway/internal/upstream"
)

// New reads an optional "Authorization: Bearer <token>" header and attaches
// the token to the request context, where the upstream client picks it up
// in place of the site token. Requests without the header pass through
// unchanged. The token is opaque to the gateway; the only check made is
// that a JWT-shaped token has not already expired.
func New(log *slog.Logger, now func() time.Time) func(next http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	log = log.With(slog.String("component", "middleware/usertoken"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" || headerParts[1] == "" {
				log.Debug("rejecting malformed authorization header", slog.String("path", r.URL.Path))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("Invalid Authorization Header"))
				return
			}

			tokenString := headerParts[1]
			if expired(tokenString, now()) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("Token expired"))
				return
			}

			ctx := upstream.WithUserToken(r.Context(), tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// expired reports true only for JWTs carrying an exp claim in the past.
// Opaque tokens are left for the upstream to judge.
func expired(tokenString string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

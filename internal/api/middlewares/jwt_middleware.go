package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
	"github.com/markdave123-py/parley/internal/services"
)

type ctxKey int

const userIDKey ctxKey = iota

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*services.Claims, error)
}

// UserLookup resolves the profile behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// JWTMiddleware validates the Authorization header and attaches the user id to the request context.
func JWTMiddleware(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}

			claims, err := tokens.Parse(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// RequireAdmin must run after JWTMiddleware. The role is read from the
// profile on every request, so a demotion takes effect before the token expires.
func RequireAdmin(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			u, err := users.GetByID(r.Context(), userID)
			switch {
			case errors.Is(err, core.ErrNotFound):
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			case err != nil:
				slog.Error("admin check failed", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			case u.Role != models.RoleAdmin:
				writeError(w, http.StatusForbidden, "admin only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

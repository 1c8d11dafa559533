package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/model"
)

type contextKey string

const accountKey contextKey = "account"

// TokenValidator resolves a session token to its account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (model.Account, error)
}

// Authenticate requires a valid session token from the cookie or a Bearer header,
// loads the account and attaches it to the request context.
func Authenticate(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, auth.MsgNoToken)
				return
			}

			acct, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				if e, ok := auth.AsError(err); ok {
					respondWithError(w, http.StatusUnauthorized, e.Message)
					return
				}
				logger.Error("token validation failed", zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "Server error")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFrom returns the account attached by Authenticate.
func AccountFrom(ctx context.Context) (model.Account, bool) {
	acct, ok := ctx.Value(accountKey).(model.Account)
	return acct, ok
}

// WithAccount attaches acct to ctx. Used by tests and internal callers.
func WithAccount(ctx context.Context, acct model.Account) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

// respondWithError writes the standard JSON envelope with no data.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"data":    nil,
		"message": message,
	})
}

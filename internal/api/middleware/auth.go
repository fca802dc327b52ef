package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloo-solutions/coverstats/internal/api"
	"github.com/cloo-solutions/coverstats/internal/domain"
)

type contextKey string

const ClientKey contextKey = "client"

// AuthValidator resolves a bearer token to the name of the calling client.
type AuthValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

func TokenAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			client, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api token")
				return
			}

			reportClient(r.Context(), client)
			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClient(ctx context.Context) string {
	client, _ := ctx.Value(ClientKey).(string)
	return client
}

// StaticTokens accepts a fixed set of tokens. The client name of a token is
// its position in the list, "token-1" for the first.
type StaticTokens []string

func (s StaticTokens) ValidateToken(_ context.Context, token string) (string, error) {
	for i, candidate := range s {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return "token-" + strconv.Itoa(i+1), nil
		}
	}
	return "", domain.ErrInvalidAPIToken
}

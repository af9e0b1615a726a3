package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/agrolink/internal/auth"
)

// Reasons reported on MetricAuthFailures.
const (
	AuthReasonMissing = "missing"
	AuthReasonInvalid = "invalid"
	AuthReasonExpired = "expired"
)

// ErrMissingToken is passed to the failure handler when no bearer token is sent.
var ErrMissingToken = errors.New("missing bearer token")

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthFailureFunc writes the response for a rejected request.
type AuthFailureFunc func(w http.ResponseWriter, r *http.Request, err error)

// Auth requires an `Authorization: Bearer <jwt>` header carrying an access
// token. The token subject becomes the request's user id (see GetUserID).
// Rejected requests are handed to onFailure and never reach next.
func Auth(tokens TokenValidator, metrics *Metrics, onFailure AuthFailureFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				metrics.IncAuthFailures(AuthReasonMissing)
				onFailure(w, r, ErrMissingToken)
				return
			}

			claims, err := tokens.ValidateToken(raw)
			if err == nil && claims.Type != auth.TokenTypeAccess {
				err = auth.ErrInvalidToken
			}
			if err != nil {
				reason := AuthReasonInvalid
				if errors.Is(err, auth.ErrExpiredToken) {
					reason = AuthReasonExpired
				}
				metrics.IncAuthFailures(reason)
				onFailure(w, r, err)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

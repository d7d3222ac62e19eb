// Package auth authenticates tap readers presenting device bearer tokens.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	request "tally/pkg/platform/middleware/request"
	"tally/pkg/requestcontext"
)

// DeviceValidator validates a bearer token and returns its claims.
type DeviceValidator interface {
	ValidateToken(tokenString string) (*DeviceClaims, error)
}

// RevocationChecker reports whether a device token has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// DeviceClaims are the claims the middleware needs from a device token.
type DeviceClaims struct {
	DeviceID id.DeviceID
	ClassID  id.ClassID // empty when the device may report for any class
	TokenID  string
}

// RequireDevice rejects requests without a valid, unrevoked device token and
// stores the device identity in the request context. revocations may be nil.
func RequireDevice(validator DeviceValidator, revocations RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(ctx, claims.TokenID)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"request_id", requestID,
						"error", err,
					)
					httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to validate token"))
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"request_id", requestID,
						"device_id", claims.DeviceID,
						"token_id", claims.TokenID,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked"))
					return
				}
			}

			ctx = requestcontext.WithDevice(ctx, claims.DeviceID, claims.ClassID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthorizeClass returns a forbidden error when the authenticated device is
// restricted to a different class.
func AuthorizeClass(ctx context.Context, classID id.ClassID) error {
	restricted := requestcontext.DeviceClass(ctx)
	if restricted != "" && restricted != classID {
		return dErrors.New(dErrors.CodeForbidden, "device is not authorized for this class")
	}
	return nil
}

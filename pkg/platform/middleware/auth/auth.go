package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/platform/httputil"
	"policydesk/pkg/requestcontext"
)

// TokenValidator verifies a bearer token and returns its staff claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*StaffClaims, error)
}

// StaffClaims are the identity fields every staff token carries.
type StaffClaims struct {
	UserID     string
	Name       string
	Department string
}

// RequireStaff authenticates the bearer token and stores the acting staff
// member on the request context. Tokens without a known department are
// rejected: every onboarding action is department-gated.
func RequireStaff(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			dept, err := id.ParseDepartment(claims.Department)
			if err != nil || claims.UserID == "" {
				logger.WarnContext(ctx, "unauthorized access - token without staff identity",
					"user_id", claims.UserID,
					"department", claims.Department,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Token does not identify a staff department"))
				return
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.StaffActor{
				UserID:     claims.UserID,
				Name:       claims.Name,
				Department: dept,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

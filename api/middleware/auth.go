package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/furnishly-backend/api/responses"
	pkgAuth "github.com/angelmondragon/furnishly-backend/pkg/auth"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// BearerToken reads the Authorization header. A bare token without the
// "Bearer" scheme is accepted; any other scheme is not.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token := header
	if scheme, rest, found := strings.Cut(header, " "); found {
		if !strings.EqualFold(scheme, "bearer") {
			return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "unsupported authorization scheme")
		}
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return "", errMissingCredentials
	}
	return token, nil
}

// Auth admits requests carrying a valid access token whose session is still
// live, and puts the caller's id and role on the context, the logger and the
// active span.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			token, err := BearerToken(r)
			if err != nil {
				fail(err)
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			switch {
			case err != nil:
				fail(pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			case claims.ID == "":
				fail(pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if sessions != nil {
				live, err := sessions.HasSession(ctx, claims.ID)
				if err != nil {
					fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !live {
					fail(pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			userID, role := claims.UserID.String(), claims.Role
			ctx = WithRole(WithUserID(ctx, userID), role)
			if logg != nil {
				ctx = logg.WithRole(logg.WithUserID(ctx, userID), string(role))
			}
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String("enduser.id", userID),
				attribute.String("enduser.role", string(role)),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

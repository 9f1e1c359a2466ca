package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/metrics"
)

// sessionMiddleware rejects the tokens whose session was revoked or left idle, and extends the others.
// It runs after the JWT middleware.
func sessionMiddleware(a *auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if err := a.Touch(ctx.Request().Context(), claims); err != nil {
				if errors.Cause(err) == auth.ErrSessionExpired {
					return errSessionExpired
				}
				return errors.Wrap(err, "touching session")
			}
			return next(ctx)
		}
	}
}

// adminMiddleware only lets admins holding one of roles through, any admin when roles is empty.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && claims.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware only lets admins and teachers through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.HasAnyRole(user.RoleAdmin, user.RoleTeacher) {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func rateLimitMiddleware(rl *auth.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !rl.Allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// metricsMiddleware records every request by route pattern.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		done := metrics.RequestStarted(ctx.Request().Method, ctx.Path())
		err := next(ctx)
		if err != nil {
			ctx.Error(err)
		}
		status := ctx.Response().Status
		if status == 0 {
			status = http.StatusOK
		}
		done(status)
		return nil
	}
}

package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	contextScopeKey = "scope"
)

// jwtConfig returns the JWT auth middleware config; tokenLookup defaults to the Authorization header.
func jwtConfig(a *auth.Authenticator, tokenLookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.SigningKey(),
		SigningMethod: auth.SigningMethod,
		ContextKey:    contextTokenKey,
		Claims:        new(auth.Claims),
		TokenLookup:   tokenLookup,
	}
}

func getContextClaims(ctx echo.Context) (*auth.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*auth.Claims); ok {
			return claims, nil
		}
	}
	return nil, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// baseApi holds what every handler group needs to know about the requesting user.
type baseApi struct {
	users    user.Service
	students *student.Service
	validate *validator.Validate
}

func (b baseApi) contextUser(ctx echo.Context) (user.User, error) {
	return getContextUser(ctx, b.users)
}

// contextScope returns the students visible to the context user.
func (b baseApi) contextScope(ctx echo.Context) (student.Scope, error) {
	if sc, ok := ctx.Get(contextScopeKey).(student.Scope); ok {
		return sc, nil
	}
	usr, err := b.contextUser(ctx)
	if err != nil {
		return student.Scope{}, err
	}
	sc, err := b.students.ScopeFor(ctx.Request().Context(), usr)
	if err != nil {
		return student.Scope{}, errors.Wrap(err, "computing visibility scope")
	}
	ctx.Set(contextScopeKey, sc)
	return sc, nil
}

// checkStudent fails with errHttpNotFound when studentID is out of the context user's scope.
func (b baseApi) checkStudent(ctx echo.Context, studentID string) error {
	sc, err := b.contextScope(ctx)
	if err != nil {
		return err
	}
	if !sc.Allows(studentID) {
		return errHttpNotFound
	}
	return nil
}

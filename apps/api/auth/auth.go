// Package auth issues and checks the access tokens shared by the HTTP backends.
//
// Every token carries a session id (the jti claim). A token is accepted only while
// its session is alive in the session.Tracker: logging out revokes the session and a
// session left idle for longer than the idle timeout expires.
package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/user"
)

const (
	audience      = "Shule"
	SigningMethod = "HS256"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrRefreshExpired       = errors.New("refresh has expired")
	ErrInvalidToken         = errors.New("invalid or expired jwt")
	ErrSessionExpired       = session.ErrExpired
)

var nowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsParent     bool     `json:"is_parent,omitempty"`  // -> PARENT PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
}

// SessionID returns the id of the session the token belongs to.
func (c *Claims) SessionID() string {
	return c.Id
}

// HasAnyRole reports whether the token holder has one of roles, see user.User.HasAnyRole.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	usr := user.User{Roles: c.Roles}
	return usr.HasAnyRole(roles...)
}

type Authenticator struct {
	users   user.Service
	tracker session.Tracker
	conf    *core.Config
}

func New(users user.Service, tracker session.Tracker, conf *core.Config) *Authenticator {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(tracker, "tracker"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()
	return &Authenticator{users: users, tracker: tracker, conf: conf}
}

func (a *Authenticator) SigningKey() []byte {
	return []byte(a.conf.SecretKey)
}

// NewClaims returns the claims of usr for session sid.
// origIat keeps the original issue time through refreshes.
func (a *Authenticator) NewClaims(usr user.User, sid string, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        sid,
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  audience,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsParent:     usr.IsParent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// Sign generates a signed JWT token string representing the claims.
func (a *Authenticator) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(SigningMethod), claims)
	ss, err := token.SignedString(a.SigningKey())
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Parse checks the signature and the expiry of token and returns its claims.
// It does not check the session.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.SigningKey(), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken starts a new session for usr and returns its token.
func (a *Authenticator) IssueToken(ctx context.Context, usr user.User) (string, error) {
	sid := session.NewID()
	if err := a.tracker.Start(ctx, sid, usr.ID); err != nil {
		return "", errors.Wrap(err, "starting session")
	}
	return a.Sign(a.NewClaims(usr, sid))
}

// Login checks the credentials and opens a session.
func (a *Authenticator) Login(ctx context.Context, uname, pwd string) (string, user.User, error) {
	usr, err := a.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return "", user.User{}, ErrAuthenticationFailed
		}
		return "", user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return "", user.User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return "", user.User{}, ErrAccountDeactivated
	}
	if usr, err = a.users.SetLastLogin(ctx, usr); err != nil {
		return "", user.User{}, errors.Wrap(err, "setting lastLogin")
	}

	token, err := a.IssueToken(ctx, usr)
	if err != nil {
		return "", user.User{}, err
	}
	return token, usr, nil
}

// Touch extends the session of claims, or returns ErrSessionExpired.
func (a *Authenticator) Touch(ctx context.Context, claims *Claims) error {
	if claims.SessionID() == "" {
		return ErrSessionExpired
	}
	return a.tracker.Touch(ctx, claims.SessionID())
}

// Refresh returns a new token for the same session, within the refresh window.
func (a *Authenticator) Refresh(ctx context.Context, claims *Claims) (string, error) {
	usr, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return "", ErrInvalidToken
		}
		return "", errors.Wrap(err, "finding user by ID")
	}

	// check if user is still active
	if !usr.IsActive {
		_ = a.tracker.Revoke(ctx, claims.SessionID())
		return "", ErrAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if nowFunc().After(expTime) {
		return "", ErrRefreshExpired
	}

	return a.Sign(a.NewClaims(usr, claims.SessionID(), claims.OrigIssuedAt))
}

// Logout revokes the session of claims.
func (a *Authenticator) Logout(ctx context.Context, claims *Claims) error {
	return errors.Wrap(a.tracker.Revoke(ctx, claims.SessionID()), "revoking session")
}

// RevokeUser ends every session of userID, eg: when the user is deactivated or deleted.
func (a *Authenticator) RevokeUser(ctx context.Context, userID string) error {
	return errors.Wrap(a.tracker.RevokeUser(ctx, userID), "revoking user sessions")
}

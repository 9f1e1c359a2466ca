package user

import (
	"context"

	"github.com/trezcool/shule/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service sending password reset emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &serviceMock{service: newService(repo, mailSvc, logger, conf)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

// MakeResetToken exposes password reset tokens to tests of other packages.
func MakeResetToken(svc Service, usr User) string {
	switch s := svc.(type) {
	case *serviceMock:
		return s.tokenGen.makeToken(usr)
	case *service:
		return s.tokenGen.makeToken(usr)
	}
	return ""
}

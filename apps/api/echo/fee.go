package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/fee"
)

type feeApi struct {
	baseApi
	svc *fee.Service
}

func registerFeeAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *fee.Service) {
	api := feeApi{baseApi: base, svc: svc}

	fg := g.Group("/fees", authed...)
	fg.GET("", api.query)
	fg.POST("", api.create, adminMiddleware())
	fg.GET("/summary/:studentId", api.summary)
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.update, adminMiddleware())
	fg.DELETE("/:id", api.destroy, adminMiddleware())
	fg.POST("/:id/payments", api.pay, adminMiddleware())
}

func (api *feeApi) query(ctx echo.Context) error {
	filter := new(fee.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.Fee{})
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	sc, err := api.contextScope(ctx)
	if err != nil {
		return err
	}
	if !sc.All {
		if len(sc.StudentIDs) == 0 {
			return ctx.JSON(http.StatusOK, []fee.Fee{})
		}
		filter.StudentIDs = sc.StudentIDs
	}

	fees, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fees")
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	f, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.checkStudent(ctx, f.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) create(ctx echo.Context) error {
	var data fee.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *feeApi) update(ctx echo.Context) error {
	f, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data fee.UpdateFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err = api.svc.Update(ctx.Request().Context(), f, data)
	if err != nil {
		return errors.Wrap(err, "updating fee")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feeApi) pay(ctx echo.Context) error {
	var data fee.Payment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Payment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.RecordPayment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) summary(ctx echo.Context) error {
	studentID := ctx.Param("studentId")
	if err := api.checkStudent(ctx, studentID); err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), studentID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

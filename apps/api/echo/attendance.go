package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/attendance"
)

type attendanceApi struct {
	baseApi
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *attendance.Service) {
	api := attendanceApi{baseApi: base, svc: svc}

	ag := g.Group("/attendance", authed...)
	ag.GET("", api.query)
	ag.POST("", api.mark, staffMiddleware)
	ag.GET("/summary/:studentId", api.summary)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, staffMiddleware)
	ag.DELETE("/:id", api.destroy, staffMiddleware)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter := new(attendance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Attendance{})
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
			return ctx.JSON(http.StatusOK, []attendance.Attendance{})
		}
		filter.StudentIDs = sc.StudentIDs
	}

	rows, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, rows)
}

// mark records a class register for one day.
func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.Register
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Register")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rows, err := api.svc.Mark(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusCreated, rows)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.checkStudent(ctx, a.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data attendance.UpdateAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err = api.svc.Update(ctx.Request().Context(), a, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	studentID := ctx.Param("studentId")
	if err := api.checkStudent(ctx, studentID); err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), studentID, ctx.QueryParam("from"), ctx.QueryParam("to"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

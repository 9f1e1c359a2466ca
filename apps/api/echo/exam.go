package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/exam"
)

type examApi struct {
	baseApi
	svc *exam.Service
}

func registerExamAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *exam.Service) {
	api := examApi{baseApi: base, svc: svc}

	eg := g.Group("/exams", authed...)
	eg.GET("", api.query)
	eg.POST("", api.create, staffMiddleware)
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update, staffMiddleware)
	eg.DELETE("/:id", api.destroy, staffMiddleware)
	eg.GET("/:id/results", api.examResults, staffMiddleware)
	eg.POST("/:id/results", api.record, staffMiddleware)

	rg := g.Group("/results", authed...)
	rg.GET("", api.queryResults)
	rg.GET("/report-card/:studentId", api.reportCard)
	rg.GET("/:id", api.retrieveResult)
	rg.PUT("/:id", api.updateResult, staffMiddleware)
	rg.DELETE("/:id", api.destroyResult, staffMiddleware)
}

// Exams

func (api *examApi) query(ctx echo.Context) error {
	filter := new(exam.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []exam.Exam{})
	}

	exams, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	return ctx.JSON(http.StatusOK, exams)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) create(ctx echo.Context) error {
	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *examApi) update(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err = api.svc.Update(ctx.Request().Context(), e, data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) examResults(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	results, err := api.svc.QueryResults(ctx.Request().Context(), &exam.ResultFilter{ExamID: e.ID}, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

// record saves the marks of many students for the :id exam, replacing those already recorded.
func (api *examApi) record(ctx echo.Context) error {
	var data exam.RecordResults
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordResults")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	results, err := api.svc.Record(ctx.Request().Context(), ctx.Param("id"), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "recording results")
	}
	return ctx.JSON(http.StatusCreated, results)
}

// Results

func (api *examApi) queryResults(ctx echo.Context) error {
	filter := new(exam.ResultFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []exam.Result{})
	}

	sc, err := api.contextScope(ctx)
	if err != nil {
		return err
	}
	if !sc.All {
		if len(sc.StudentIDs) == 0 {
			return ctx.JSON(http.StatusOK, []exam.Result{})
		}
		filter.StudentIDs = sc.StudentIDs
	}

	results, err := api.svc.QueryResults(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *examApi) retrieveResult(ctx echo.Context) error {
	r, err := api.svc.GetResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.checkStudent(ctx, r.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *examApi) updateResult(ctx echo.Context) error {
	r, err := api.svc.GetResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data exam.UpdateResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateResult")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err = api.svc.UpdateResult(ctx.Request().Context(), r, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating result")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *examApi) destroyResult(ctx echo.Context) error {
	if err := api.svc.DeleteResult(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting result")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) reportCard(ctx echo.Context) error {
	studentID := ctx.Param("studentId")
	if err := api.checkStudent(ctx, studentID); err != nil {
		return err
	}
	card, err := api.svc.ReportCard(ctx.Request().Context(), studentID, ctx.QueryParam("academic_year_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, card)
}

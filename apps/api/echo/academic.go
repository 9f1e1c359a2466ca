package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
)

type academicApi struct {
	baseApi
	svc *academic.Service
}

func registerAcademicAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *academic.Service) {
	api := academicApi{baseApi: base, svc: svc}

	yg := g.Group("/academic-years", authed...)
	yg.GET("", api.queryYears)
	yg.GET("/active", api.activeYear)
	yg.GET("/:id", api.retrieveYear)
	yg.POST("", api.createYear, adminMiddleware())
	yg.PUT("/:id", api.updateYear, adminMiddleware())
	yg.DELETE("/:id", api.destroyYear, adminMiddleware())
	yg.POST("/:id/activate", api.activateYear, adminMiddleware())

	cg := g.Group("/classes", authed...)
	cg.GET("", api.queryClasses)
	cg.GET("/:id", api.retrieveClass)
	cg.POST("", api.createClass, adminMiddleware())
	cg.PUT("/:id", api.updateClass, adminMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())
	cg.GET("/:id/sections", api.classSections)
	cg.GET("/:id/students", api.classStudents, staffMiddleware)
	cg.GET("/:id/subjects", api.classSubjects)
	cg.POST("/:id/subjects", api.assignSubject, adminMiddleware())
	cg.DELETE("/:id/subjects/:subjectId", api.unassignSubject, adminMiddleware())

	sg := g.Group("/sections", authed...)
	sg.GET("", api.querySections)
	sg.GET("/:id", api.retrieveSection)
	sg.POST("", api.createSection, adminMiddleware())
	sg.PUT("/:id", api.updateSection, adminMiddleware())
	sg.DELETE("/:id", api.destroySection, adminMiddleware())

	subg := g.Group("/subjects", authed...)
	subg.GET("", api.querySubjects)
	subg.GET("/:id", api.retrieveSubject)
	subg.POST("", api.createSubject, adminMiddleware())
	subg.PUT("/:id", api.updateSubject, adminMiddleware())
	subg.DELETE("/:id", api.destroySubject, adminMiddleware())
}

// Academic Years

func (api *academicApi) queryYears(ctx echo.Context) error {
	years, err := api.svc.QueryYears(ctx.Request().Context(), bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *academicApi) activeYear(ctx echo.Context) error {
	y, err := api.svc.GetActiveYear(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, y)
}

func (api *academicApi) retrieveYear(ctx echo.Context) error {
	y, err := api.svc.GetYear(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, y)
}

func (api *academicApi) createYear(ctx echo.Context) error {
	var data academic.NewYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	y, err := api.svc.CreateYear(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, y)
}

func (api *academicApi) updateYear(ctx echo.Context) error {
	y, err := api.svc.GetYear(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data academic.UpdateYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	y, err = api.svc.UpdateYear(ctx.Request().Context(), y, data)
	if err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return ctx.JSON(http.StatusOK, y)
}

func (api *academicApi) destroyYear(ctx echo.Context) error {
	if err := api.svc.DeleteYear(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *academicApi) activateYear(ctx echo.Context) error {
	y, err := api.svc.ActivateYear(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating academic year")
	}
	return ctx.JSON(http.StatusOK, y)
}

// Classes

func (api *academicApi) queryClasses(ctx echo.Context) error {
	filter := new(academic.ClassFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Class{})
	}
	filter.Clean()

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *academicApi) retrieveClass(ctx echo.Context) error {
	c, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *academicApi) createClass(ctx echo.Context) error {
	var data academic.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *academicApi) updateClass(ctx echo.Context) error {
	c, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data academic.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.UpdateClass(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *academicApi) destroyClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *academicApi) classSections(ctx echo.Context) error {
	c, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	sections, err := api.svc.QuerySections(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *academicApi) classStudents(ctx echo.Context) error {
	c, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	students, err := api.students.Query(ctx.Request().Context(), &student.QueryFilter{ClassID: c.ID}, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academicApi) classSubjects(ctx echo.Context) error {
	subjects, err := api.svc.ClassSubjects(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying class subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) assignSubject(ctx echo.Context) error {
	var data academic.AssignSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cs, err := api.svc.AssignSubject(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning subject")
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *academicApi) unassignSubject(ctx echo.Context) error {
	if err := api.svc.UnassignSubject(ctx.Request().Context(), ctx.Param("id"), ctx.Param("subjectId")); err != nil {
		return errors.Wrap(err, "unassigning subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Sections

func (api *academicApi) querySections(ctx echo.Context) error {
	sections, err := api.svc.QuerySections(ctx.Request().Context(), ctx.QueryParam("class_id"))
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *academicApi) retrieveSection(ctx echo.Context) error {
	s, err := api.svc.GetSection(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) createSection(ctx echo.Context) error {
	var data academic.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateSection(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating section")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *academicApi) updateSection(ctx echo.Context) error {
	s, err := api.svc.GetSection(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data academic.UpdateSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err = api.svc.UpdateSection(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating section")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) destroySection(ctx echo.Context) error {
	if err := api.svc.DeleteSection(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting section")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subjects

func (api *academicApi) querySubjects(ctx echo.Context) error {
	filter := new(academic.SubjectFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Subject{})
	}
	filter.Clean()

	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) retrieveSubject(ctx echo.Context) error {
	s, err := api.svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) createSubject(ctx echo.Context) error {
	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *academicApi) updateSubject(ctx echo.Context) error {
	s, err := api.svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data academic.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err = api.svc.UpdateSubject(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) destroySubject(ctx echo.Context) error {
	if err := api.svc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

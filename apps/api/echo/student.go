package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type studentApi struct {
	baseApi
}

func registerStudentAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi) {
	api := studentApi{baseApi: base}

	sg := g.Group("/students", authed...)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.DELETE("", api.destroyMultiple, adminMiddleware())
	sg.POST("/import", api.importRoster, adminMiddleware())
	sg.GET("/export", api.exportRoster, staffMiddleware)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())

	pg := g.Group("/parents", authed...)
	pg.GET("", api.queryParents, staffMiddleware)
	pg.POST("", api.createParent, adminMiddleware())
	pg.GET("/:id", api.retrieveParent)
	pg.PUT("/:id", api.updateParent, adminMiddleware())
	pg.DELETE("/:id", api.destroyParent, adminMiddleware())
	pg.GET("/:id/children", api.children)
}

// Students

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()

	sc, err := api.contextScope(ctx)
	if err != nil {
		return err
	}
	if !sc.Filter(filter) {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}

	students, err := api.students.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	if err := api.checkStudent(ctx, ctx.Param("id")); err != nil {
		return err
	}
	s, err := api.students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.students.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	s, err := api.students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err = api.students.Update(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if _, err := api.students.Get(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	if err := api.students.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.students.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// importRoster enrolls the students of an uploaded XLSX roster (multipart field "file") into class_id.
func (api *studentApi) importRoster(ctx echo.Context) error {
	classID := ctx.FormValue("class_id")
	if classID == "" {
		return core.NewFieldError("class_id", "this field is required")
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldError("file", "this field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	report, err := api.students.Import(ctx.Request().Context(), f, classID, api.validate)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewMissingRefError("class_id")
		}
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *studentApi) exportRoster(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	var buf bytes.Buffer
	if _, err := api.students.Export(ctx.Request().Context(), &buf, filter); err != nil {
		return errors.Wrap(err, "exporting students")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "students.xlsx"))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Parents

func (api *studentApi) queryParents(ctx echo.Context) error {
	filter := new(student.ParentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Parent{})
	}
	filter.Clean()

	parents, err := api.students.QueryParents(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	return ctx.JSON(http.StatusOK, parents)
}

// contextParent returns the :id parent if the context user is staff or that parent.
func (api *studentApi) contextParent(ctx echo.Context) (student.Parent, error) {
	usr, err := api.contextUser(ctx)
	if err != nil {
		return student.Parent{}, errors.Wrap(err, "getting context user")
	}
	p, err := api.students.GetParent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return student.Parent{}, err
	}
	if !usr.IsStaff() && p.UserID != usr.ID {
		return student.Parent{}, errHttpNotFound
	}
	return p, nil
}

func (api *studentApi) retrieveParent(ctx echo.Context) error {
	p, err := api.contextParent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) children(ctx echo.Context) error {
	p, err := api.contextParent(ctx)
	if err != nil {
		return err
	}
	children, err := api.students.Children(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "querying children")
	}
	return ctx.JSON(http.StatusOK, children)
}

func (api *studentApi) createParent(ctx echo.Context) error {
	var data student.NewParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.students.CreateParent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating parent")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *studentApi) updateParent(ctx echo.Context) error {
	p, err := api.students.GetParent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data student.UpdateParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateParent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err = api.students.UpdateParent(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating parent")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) destroyParent(ctx echo.Context) error {
	if err := api.students.DeleteParent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/document"
)

type documentApi struct {
	baseApi
	svc *document.Service
}

func registerDocumentAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *document.Service) {
	api := documentApi{baseApi: base, svc: svc}

	dg := g.Group("/documents", authed...)
	dg.GET("", api.query)
	dg.POST("", api.upload, staffMiddleware)
	dg.GET("/:id", api.retrieve)
	dg.GET("/:id/download", api.download)
	dg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *documentApi) query(ctx echo.Context) error {
	filter := new(document.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []document.Document{})
	}

	sc, err := api.contextScope(ctx)
	if err != nil {
		return err
	}
	if !sc.All {
		if len(sc.StudentIDs) == 0 {
			return ctx.JSON(http.StatusOK, []document.Document{})
		}
		filter.StudentIDs = sc.StudentIDs
	}

	docs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	return ctx.JSON(http.StatusOK, docs)
}

// upload stores the multipart field "file" for the owner given by the owner_type and owner_id fields.
func (api *documentApi) upload(ctx echo.Context) error {
	var data document.NewDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDocument")
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldError("file", "this field is required")
	}
	data.FileName = fh.Filename
	data.ContentType = fh.Header.Get(echo.HeaderContentType)
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	usr, err := api.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	d, err := api.svc.Upload(ctx.Request().Context(), data, f, usr.ID)
	if err != nil {
		return errors.Wrap(err, "uploading document")
	}
	return ctx.JSON(http.StatusCreated, d)
}

// contextDocument returns the :id document if the context user may see it.
func (api *documentApi) contextDocument(ctx echo.Context) (document.Document, error) {
	d, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return document.Document{}, err
	}

	switch d.OwnerType {
	case document.OwnerStudent:
		if err := api.checkStudent(ctx, d.OwnerID); err != nil {
			return document.Document{}, err
		}
	default:
		usr, err := api.contextUser(ctx)
		if err != nil {
			return document.Document{}, errors.Wrap(err, "getting context user")
		}
		if !usr.IsStaff() {
			return document.Document{}, errHttpNotFound
		}
	}
	return d, nil
}

func (api *documentApi) retrieve(ctx echo.Context) error {
	d, err := api.contextDocument(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *documentApi) download(ctx echo.Context) error {
	d, err := api.contextDocument(ctx)
	if err != nil {
		return err
	}
	rc, err := api.svc.Download(ctx.Request().Context(), d)
	if err != nil {
		return errors.Wrap(err, "opening document")
	}
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", d.FileName))
	return ctx.Stream(http.StatusOK, d.ContentType, rc)
}

func (api *documentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return ctx.NoContent(http.StatusNoContent)
}

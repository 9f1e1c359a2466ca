package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/core/messaging"
)

var errRealtimeUnavailable = echo.NewHTTPError(http.StatusServiceUnavailable, "realtime updates unavailable")

type messagingApi struct {
	baseApi
	svc *messaging.Service
	rt  Realtime
}

func registerMessagingAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	base baseApi,
	svc *messaging.Service,
	rt Realtime,
	a *auth.Authenticator,
) {
	api := messagingApi{baseApi: base, svc: svc, rt: rt}

	mg := g.Group("/messages", authed...)
	mg.GET("/inbox", api.inbox)
	mg.GET("/sent", api.sent)
	mg.GET("/unread-count", api.unreadCount)
	mg.POST("", api.send)
	mg.GET("/:id", api.retrieve)
	mg.POST("/:id/read", api.markRead)
	mg.DELETE("/:id", api.destroy)

	ng := g.Group("/notifications", authed...)
	ng.GET("", api.notifications)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/broadcast", api.broadcast, adminMiddleware())
	ng.POST("/:id/read", api.markNotificationRead)

	// browsers cannot set headers on websocket requests
	wg := g.Group("/ws", middleware.JWTWithConfig(jwtConfig(a, "query:token")), sessionMiddleware(a))
	wg.GET("", api.realtime)
}

func (api *messagingApi) contextUserID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Messages

func (api *messagingApi) inbox(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	var filter messaging.NotificationFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []messaging.Message{})
	}

	msgs, err := api.svc.Inbox(ctx.Request().Context(), userID, filter.UnreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying inbox")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messagingApi) sent(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Sent(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying sent messages")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messagingApi) unreadCount(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.UnreadCount(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *messagingApi) send(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}

	var data messaging.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messagingApi) retrieve(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	msg, err := api.svc.Get(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messagingApi) markRead(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	msg, err := api.svc.MarkRead(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messagingApi) destroy(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), userID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting message")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Notifications

func (api *messagingApi) notifications(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	var filter messaging.NotificationFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []messaging.Notification{})
	}

	notifs, err := api.svc.List(ctx.Request().Context(), userID, filter.UnreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *messagingApi) markNotificationRead(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkNotificationRead(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *messagingApi) markAllRead(ctx echo.Context) error {
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *messagingApi) broadcast(ctx echo.Context) error {
	var data messaging.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	notifs, err := api.svc.Broadcast(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "broadcasting notification")
	}
	return ctx.JSON(http.StatusCreated, CountResponse{Count: len(notifs)})
}

// realtime upgrades the request to a websocket receiving the user's events.
func (api *messagingApi) realtime(ctx echo.Context) error {
	if api.rt == nil {
		return errRealtimeUnavailable
	}
	userID, err := api.contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.rt.Serve(ctx.Response(), ctx.Request(), userID); err != nil {
		return errors.Wrap(err, "serving websocket")
	}
	return nil
}

package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/chat"
)

type (
	JoinRoomRequest struct {
		Password string `json:"password"`
	}

	RoomTokenResponse struct {
		Token string `json:"token"`
	}
)

type chatApi struct {
	svc *chat.Service
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *chat.Service) {
	api := chatApi{svc: svc}

	cg := g.Group("/chat/rooms", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, staffMiddleware())
	cg.POST("/:id/join", api.join)
	cg.POST("/:id/token", api.token)
	cg.GET("/:id/messages", api.history)
}

func contextIdentity(ctx echo.Context) (*chat.Identity, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}

func (api *chatApi) query(ctx echo.Context) error {
	rooms, err := api.svc.ListRooms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing rooms")
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *chatApi) create(ctx echo.Context) error {
	ident, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	var data chat.NewRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoom")
	}
	room, err := api.svc.CreateRoom(ctx.Request().Context(), *ident, data)
	if err != nil {
		return errors.Wrap(err, "creating room")
	}
	return ctx.JSON(http.StatusCreated, room)
}

func (api *chatApi) join(ctx echo.Context) error {
	ident, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	var data JoinRoomRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRoomRequest")
	}
	if err := api.svc.JoinWithPassword(ctx.Request().Context(), *ident, ctx.Param("id"), data.Password); err != nil {
		return errors.Wrap(err, "joining room")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *chatApi) token(ctx echo.Context) error {
	ident, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	token, err := api.svc.IssueRoomToken(ctx.Request().Context(), *ident, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "issuing room token")
	}
	return ctx.JSON(http.StatusOK, RoomTokenResponse{Token: token})
}

func (api *chatApi) history(ctx echo.Context) error {
	ident, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	var count int
	if raw := ctx.QueryParam("count"); raw != "" {
		if count, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "count must be a number")
		}
	}
	items, err := api.svc.LoadMessageHistory(ctx.Request().Context(), chat.Conn{User: ident}, ctx.Param("id"), count)
	if err != nil {
		return errors.Wrap(err, "loading history")
	}
	return ctx.JSON(http.StatusOK, items)
}

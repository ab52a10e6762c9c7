package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core/liveclass"
)

type (
	liveClassApi struct {
		svc      *liveclass.Service
		validate *validator.Validate
	}

	// HostRoom is a meeting room as its host sees it.
	HostRoom struct {
		MeetingID string `json:"meetingId"`
		JoinLink  string `json:"link"`
		HostLink  string `json:"hostLink"`
		Password  string `json:"password"`
	}

	ModuleRoom struct {
		ModuleID string `json:"moduleId"`
		Title    string `json:"title"`
		HostRoom
	}

	// ClassroomResponse is a live class along with its host links. Admins only.
	ClassroomResponse struct {
		liveclass.LiveClass
		Meeting        *HostRoom    `json:"meeting,omitempty"`
		ModuleMeetings []ModuleRoom `json:"moduleMeetings,omitempty"`
	}
)

func newHostRoom(creds *liveclass.MeetingCredentials) HostRoom {
	return HostRoom{MeetingID: creds.MeetingID, JoinLink: creds.JoinLink, HostLink: creds.HostLink, Password: creds.Password}
}

func newClassroomResponse(cls liveclass.LiveClass) ClassroomResponse {
	res := ClassroomResponse{LiveClass: cls}
	if cls.Meeting != nil {
		room := newHostRoom(cls.Meeting)
		res.Meeting = &room
	}
	for _, mod := range cls.Modules {
		if mod.Meeting != nil {
			res.ModuleMeetings = append(res.ModuleMeetings, ModuleRoom{ModuleID: mod.ID, Title: mod.Title, HostRoom: newHostRoom(mod.Meeting)})
		}
	}
	return res
}

func registerLiveClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *liveclass.Service, validate *validator.Validate) {
	api := liveClassApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/class/:id", api.retrieve, jwt)

	ag := g.Group("/admin/class", jwt, adminMiddleware())
	ag.POST("", api.create)
	ag.POST("/:id/toggle-classroom", api.toggleClassroom)
	ag.DELETE("/:id", api.destroy)
}

// Handlers

func (api *liveClassApi) create(ctx echo.Context) error {
	var data liveclass.NewLiveClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLiveClass")
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data, api.validate)
	if err != nil {
		return errors.Wrap(err, "creating live class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

// retrieve never exposes meeting credentials: students get theirs from check-subscription.
func (api *liveClassApi) retrieve(ctx echo.Context) error {
	cls, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting live class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *liveClassApi) toggleClassroom(ctx echo.Context) error {
	var data ToggleClassroomRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ToggleClassroomRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.SetLive(ctx.Request().Context(), ctx.Param("id"), *data.IsOnClassroom)
	if err != nil {
		return errors.Wrap(err, "toggling classroom")
	}
	return ctx.JSON(http.StatusOK, newClassroomResponse(cls))
}

func (api *liveClassApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting live class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

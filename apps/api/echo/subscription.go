package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

type subscriptionApi struct {
	svc      *subscription.Service
	validate *validator.Validate
}

// SubscriptionResponse is a subscription along with what its holder can join right now.
type SubscriptionResponse struct {
	subscription.Subscription
	CanJoinClass   bool                         `json:"canJoinClass"`
	MeetingDetails *subscription.MeetingDetails `json:"meetingDetails,omitempty"`
}

func registerSubscriptionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *subscription.Service, validate *validator.Validate) {
	api := subscriptionApi{
		svc:      svc,
		validate: validate,
	}

	// authed endpoints
	ag := g.Group("", jwt)
	ag.POST("/register", api.register)
	ag.POST("/verify-registration", api.verifyRegistration)
	ag.POST("/pay-course-access", api.payCourseAccess)
	ag.POST("/verify-course-access", api.verifyCourseAccess)
	ag.GET("/check-subscription/:classId", api.check)
	ag.POST("/cancel-subscription/:id", api.cancel)

	// admin endpoints
	adm := g.Group("/admin", jwt, adminMiddleware())
	adm.GET("/subscriptions", api.query)
	adm.GET("/subscriptions/:id/payments", api.payments)
	adm.POST("/approve-subscription/:id", api.approve)
	adm.POST("/reject-subscription/:id", api.reject)
}

// Handlers

func (api *subscriptionApi) register(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data ScopeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScopeRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.InitiateRegistration(ctx.Request().Context(), actor, data.Scope())
	if err != nil {
		return errors.Wrap(err, "initiating registration")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *subscriptionApi) verifyRegistration(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data VerifyRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.ConfirmRegistration(ctx.Request().Context(), actor, data.Scope(), data.Proof())
	if err != nil {
		return errors.Wrap(err, "confirming registration")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) payCourseAccess(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data ScopeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScopeRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.InitiateCourseAccess(ctx.Request().Context(), actor, data.Scope())
	if err != nil {
		return errors.Wrap(err, "initiating course access")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *subscriptionApi) verifyCourseAccess(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data VerifyRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.ConfirmCourseAccess(ctx.Request().Context(), actor, data.Scope(), data.Proof())
	if err != nil {
		return errors.Wrap(err, "confirming course access")
	}

	view, _, err := api.svc.Check(ctx.Request().Context(), actor, data.Scope())
	if err != nil {
		return errors.Wrap(err, "resolving access")
	}
	return ctx.JSON(http.StatusOK, SubscriptionResponse{
		Subscription:   sub,
		CanJoinClass:   view.CanJoinClass,
		MeetingDetails: view.MeetingDetails,
	})
}

func (api *subscriptionApi) check(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	data := ScopeRequest{ClassID: ctx.Param("classId"), ModuleID: ctx.QueryParam("moduleId")}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	view, _, err := api.svc.Check(ctx.Request().Context(), actor, data.Scope())
	if err != nil {
		return errors.Wrap(err, "checking subscription")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *subscriptionApi) cancel(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Cancel(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) query(ctx echo.Context) error {
	var q SubscriptionQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}

	subs, err := api.svc.Query(ctx.Request().Context(), q.Filter, q.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *subscriptionApi) payments(ctx echo.Context) error {
	sub, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subscription")
	}

	pmts, err := api.svc.Payments(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *subscriptionApi) approve(ctx echo.Context) error {
	sub, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) reject(ctx echo.Context) error {
	sub, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

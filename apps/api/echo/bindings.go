package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	ScopeRequest struct {
		ClassID  string `json:"classId" validate:"required,notblank"`
		ModuleID string `json:"moduleId"`
	}

	// VerifyRequest carries the proof handed back by the payment checkout. Ids and signature are opaque.
	VerifyRequest struct {
		ScopeRequest
		OrderID   string `json:"orderId" validate:"required"`
		PaymentID string `json:"paymentId" validate:"required"`
		Signature string `json:"signature" validate:"required"`
	}

	ToggleClassroomRequest struct {
		IsOnClassroom *bool `json:"isOnClassroom" validate:"required"`
	}

	SubscriptionQuery struct {
		Ordering
		Filter subscription.QueryFilter
	}
)

func (r *ScopeRequest) Validate(validate *validator.Validate) error {
	r.ClassID = core.CleanString(r.ClassID)
	r.ModuleID = core.CleanString(r.ModuleID)
	return validate.Struct(r)
}

func (r ScopeRequest) Scope() subscription.Scope {
	if r.ModuleID != "" {
		return subscription.ModuleScope(r.ClassID, r.ModuleID)
	}
	return subscription.ClassScope(r.ClassID)
}

func (r *VerifyRequest) Validate(validate *validator.Validate) error {
	r.ClassID = core.CleanString(r.ClassID)
	r.ModuleID = core.CleanString(r.ModuleID)
	return validate.Struct(r)
}

func (r VerifyRequest) Proof() payment.Proof {
	return payment.Proof{OrderID: r.OrderID, PaymentID: r.PaymentID, Signature: r.Signature}
}

func (r *ToggleClassroomRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// Bind reads `?status=PENDING_APPROVAL,ACTIVE&classId=...&userId=...&ordering=...`.
func (q *SubscriptionQuery) Bind(ctx echo.Context) error {
	q.Ordering.Bind(ctx)
	q.Filter.ClassID = core.CleanString(ctx.QueryParam("classId"))
	q.Filter.UserID = core.CleanString(ctx.QueryParam("userId"))

	statuses := ctx.QueryParam("status")
	if statuses == "" {
		return nil
	}
	for _, s := range strings.Split(statuses, ",") {
		status := subscription.Status(strings.ToUpper(core.CleanString(s)))
		if !status.Valid() {
			return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status " + s})
		}
		q.Filter.Statuses = append(q.Filter.Statuses, status)
	}
	return nil
}

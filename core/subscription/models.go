package subscription

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusNone            Status = "" // no subscription yet
	StatusRegistered      Status = "REGISTERED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

// Statuses lists every persisted status.
var Statuses = []Status{
	StatusRegistered, StatusPendingApproval, StatusActive, StatusRejected, StatusCancelled, StatusExpired,
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusExpired
}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Event is anything that moves a Subscription from one status to another.
type Event string

const (
	EventCheckout         Event = "checkout"          // registration checkout opened
	EventRegistrationPaid Event = "registration_paid" // verified registration fee
	EventFreeEnrollment   Event = "free_enrollment"
	EventApprove          Event = "approve"
	EventReject           Event = "reject"
	EventCourseAccessPaid Event = "course_access_paid" // verified course fee
	EventCancel           Event = "cancel"
	EventExpire           Event = "expire"
)

// transitions maps an Event to the statuses it may leave from and the status it leads to.
var transitions = map[Event]map[Status]Status{
	EventCheckout: {
		StatusNone:       StatusRegistered,
		StatusRegistered: StatusRegistered,
		StatusRejected:   StatusRejected,
		StatusCancelled:  StatusCancelled,
		StatusExpired:    StatusExpired,
	},
	EventRegistrationPaid: {
		StatusNone:       StatusPendingApproval,
		StatusRegistered: StatusPendingApproval,
		StatusRejected:   StatusPendingApproval,
		StatusCancelled:  StatusPendingApproval,
		StatusExpired:    StatusPendingApproval,
	},
	EventFreeEnrollment: {
		StatusNone:            StatusActive,
		StatusRegistered:      StatusActive,
		StatusPendingApproval: StatusActive,
		StatusActive:          StatusActive,
		StatusRejected:        StatusActive,
		StatusCancelled:       StatusActive,
		StatusExpired:         StatusActive,
	},
	EventApprove: {
		StatusPendingApproval: StatusActive,
	},
	EventReject: {
		StatusPendingApproval: StatusRejected,
	},
	EventCourseAccessPaid: {
		StatusActive: StatusActive,
	},
	EventCancel: {
		StatusRegistered:      StatusCancelled,
		StatusPendingApproval: StatusCancelled,
		StatusActive:          StatusCancelled,
	},
	EventExpire: {
		StatusPendingApproval: StatusExpired,
		StatusActive:          StatusExpired,
	},
}

// Next returns the status ev leads to from the current status, or an ErrInvalidState error.
func Next(current Status, ev Event) (Status, error) {
	if next, ok := transitions[ev][current]; ok {
		return next, nil
	}
	from := string(current)
	if current == StatusNone {
		from = "no subscription"
	}
	return current, errors.WithMessage(ErrInvalidState, fmt.Sprintf("cannot %s from %s", ev, from))
}

// Scope is what a Subscription covers: a whole class, or one module of a class.
// Build it with ClassScope or ModuleScope.
type Scope struct {
	ClassID  string
	ModuleID string // empty for a class scope
}

func ClassScope(classID string) Scope {
	return Scope{ClassID: classID}
}

func ModuleScope(classID, moduleID string) Scope {
	return Scope{ClassID: classID, ModuleID: moduleID}
}

func (s Scope) IsModule() bool { return s.ModuleID != "" }

func (s Scope) String() string {
	if s.IsModule() {
		return "class " + s.ClassID + " / module " + s.ModuleID
	}
	return "class " + s.ClassID
}

type Subscription struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"userId"`
	UserEmail             string     `json:"userEmail,omitempty"`
	UserName              string     `json:"userName,omitempty"`
	LiveClassID           string     `json:"liveClassId"`
	ModuleID              string     `json:"moduleId,omitempty"`
	Status                Status     `json:"status"`
	IsRegistered          bool       `json:"isRegistered"`
	IsApproved            bool       `json:"isApproved"`
	HasAccessToLinks      bool       `json:"hasAccessToLinks"`
	StartDate             *time.Time `json:"startDate,omitempty"`
	EndDate               *time.Time `json:"endDate,omitempty"`
	NextPaymentDate       *time.Time `json:"nextPaymentDate,omitempty"`
	RegistrationPaymentID string     `json:"registrationPaymentId,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func (sub Subscription) Scope() Scope {
	return Scope{ClassID: sub.LiveClassID, ModuleID: sub.ModuleID}
}

// IsSubscribed reports whether the registration fee was paid on a live (non terminal) subscription.
func (sub Subscription) IsSubscribed() bool {
	return sub.IsRegistered && !sub.Status.IsTerminal()
}

// apply moves sub along ev, rejecting the event when sub's current status does not allow it.
func (sub *Subscription) apply(ev Event) error {
	next, err := Next(sub.Status, ev)
	if err != nil {
		return err
	}
	sub.Status = next
	return nil
}

// clearAccess drops every access flag. The subscription needs a new registration payment to come back.
func (sub *Subscription) clearAccess() {
	sub.IsRegistered = false
	sub.IsApproved = false
	sub.HasAccessToLinks = false
	sub.NextPaymentDate = nil
}

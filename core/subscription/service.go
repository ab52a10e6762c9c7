package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
)

var (
	// errors
	ErrNotFound      = errors.New("subscription not found")
	ErrInvalidState  = errors.New("invalid subscription state")
	ErrNotRegistered = errors.New("registration fee not paid")
	ErrNotApproved   = errors.New("registration not approved yet")
	// ErrConflict is returned by Repository.CreateSubscription when the (user, class, module) tuple already exists.
	ErrConflict = errors.New("subscription already exists")

	errRegistrationClosed = errors.New("registrations are closed for this class")
	errClassUnlisted      = errors.New("this class is not open to the public")
	errNoFee              = errors.New("no fee is set for this class")
	errUnknownOrder       = errors.New("payment order does not match any checkout of this subscription")
	errModuleNotFound     = errors.New("module not found in this class")

	NowFunc = time.Now // mockable
)

type (
	GetFilter struct {
		ID        string
		UserID    string
		Scope     *Scope
		ForUpdate bool // lock the row until the transaction ends
	}

	QueryFilter struct {
		ClassID       string
		UserID        string
		Statuses      []Status
		EndDateBefore time.Time
	}

	Repository interface {
		// CreateSubscription returns ErrConflict when a subscription already exists for the same scope and user.
		CreateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
		GetSubscription(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Subscription, error)
		QuerySubscriptions(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)

		// CreatePayment returns payment.ErrDuplicate when the provider payment id is already recorded.
		CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error)
		GetPayment(ctx context.Context, providerPaymentID string, exec ...core.DBExecutor) (payment.Payment, error)
		QueryPayments(ctx context.Context, subscriptionID string, exec ...core.DBExecutor) ([]payment.Payment, error)

		// CreateCheckout returns payment.ErrDuplicate when the provider order id is already recorded.
		CreateCheckout(ctx context.Context, c payment.Checkout, exec ...core.DBExecutor) error
		// GetCheckout returns payment.ErrNotFound for an order that was never opened here.
		GetCheckout(ctx context.Context, providerOrderID string, exec ...core.DBExecutor) (payment.Checkout, error)
	}

	ServiceDeps struct {
		Repo     Repository
		Classes  liveclass.Repository
		Gateway  payment.Gateway
		Tx       core.Transactor
		MailSvc  core.EmailService
		Logger   core.Logger
		Currency string
	}

	// Service drives subscriptions through registration, approval and course access.
	Service struct {
		repo     Repository
		classes  liveclass.Repository
		gateway  payment.Gateway
		tx       core.Transactor
		mailSvc  core.EmailService
		logger   core.Logger
		currency string
	}

	// CheckoutResult is either a provider order to pay, or a flag telling the caller nothing needs to be paid.
	CheckoutResult struct {
		Order             *payment.Order `json:"order,omitempty"`
		AlreadyRegistered bool           `json:"alreadyRegistered,omitempty"`
		AlreadyHasAccess  bool           `json:"alreadyHasAccess,omitempty"`
		Free              bool           `json:"free,omitempty"`
		Subscription      *Subscription  `json:"subscription,omitempty"`
	}
)

func NewService(deps ServiceDeps) *Service {
	return &Service{
		repo:     deps.Repo,
		classes:  deps.Classes,
		gateway:  deps.Gateway,
		tx:       deps.Tx,
		mailSvc:  deps.MailSvc,
		logger:   deps.Logger,
		currency: deps.Currency,
	}
}

func now() time.Time { return NowFunc().UTC() }

// target loads the class of scope and checks that the module, if any, belongs to it.
func (svc *Service) target(ctx context.Context, scope Scope) (liveclass.LiveClass, *liveclass.Module, error) {
	if scope.ClassID == "" {
		return liveclass.LiveClass{}, nil, core.NewValidationError(nil, core.FieldError{Field: "classId", Error: "this field is required"})
	}
	cls, err := svc.classes.GetLiveClass(ctx, liveclass.GetFilter{ID: scope.ClassID})
	if err != nil {
		return liveclass.LiveClass{}, nil, errors.Wrap(err, "getting live class")
	}
	if !scope.IsModule() {
		return cls, nil, nil
	}
	mod, ok := cls.Module(scope.ModuleID)
	if !ok {
		return liveclass.LiveClass{}, nil, core.NewValidationError(errModuleNotFound, core.FieldError{Field: "moduleId", Error: errModuleNotFound.Error()})
	}
	return cls, &mod, nil
}

func isFree(cls liveclass.LiveClass, mod *liveclass.Module) bool {
	if mod != nil {
		return cls.IsModuleFree(*mod)
	}
	return cls.IsFree
}

func (svc *Service) findByScope(ctx context.Context, userID string, scope Scope, exec ...core.DBExecutor) (*Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, GetFilter{UserID: userID, Scope: &scope, ForUpdate: len(exec) > 0}, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting subscription")
	}
	return &sub, nil
}

// lockOrCreate returns the locked subscription of the tuple, inserting newSub when there is none yet.
// A concurrent insert for the same tuple is absorbed by re-reading the winner's row.
func (svc *Service) lockOrCreate(ctx context.Context, exec core.DBExecutor, newSub Subscription) (Subscription, bool, error) {
	scope := newSub.Scope()
	existing, err := svc.findByScope(ctx, newSub.UserID, scope, exec)
	if err != nil {
		return Subscription{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	created, err := svc.repo.CreateSubscription(ctx, newSub, exec)
	if err == nil {
		return created, true, nil
	}
	if errors.Cause(err) != ErrConflict {
		return Subscription{}, false, errors.Wrap(err, "creating subscription")
	}
	existing, err = svc.findByScope(ctx, newSub.UserID, scope, exec)
	if err != nil {
		return Subscription{}, false, err
	}
	if existing == nil {
		return Subscription{}, false, errors.Wrap(ErrConflict, "re-reading conflicting subscription")
	}
	return *existing, false, nil
}

func newSubscription(actor core.Actor, scope Scope, status Status) Subscription {
	ts := now()
	return Subscription{
		UserID:      actor.ID,
		UserEmail:   actor.Email,
		UserName:    actor.Name,
		LiveClassID: scope.ClassID,
		ModuleID:    scope.ModuleID,
		Status:      status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// InitiateRegistration opens a registration fee checkout for scope.
// Free targets are enrolled right away. Already registered users get AlreadyRegistered instead of an order.
func (svc *Service) InitiateRegistration(ctx context.Context, actor core.Actor, scope Scope) (CheckoutResult, error) {
	cls, mod, err := svc.target(ctx, scope)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !cls.IsActive {
		return CheckoutResult{}, core.NewValidationError(errClassUnlisted)
	}
	if isFree(cls, mod) {
		sub, err := svc.enrollFree(ctx, actor, cls, scope, true)
		if err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{Free: true, AlreadyRegistered: true, Subscription: &sub}, nil
	}

	existing, err := svc.findByScope(ctx, actor.ID, scope)
	if err != nil {
		return CheckoutResult{}, err
	}
	if existing != nil && existing.IsSubscribed() {
		return CheckoutResult{AlreadyRegistered: true, Subscription: existing}, nil
	}
	if !cls.RegistrationEnabled {
		return CheckoutResult{}, core.NewValidationError(errRegistrationClosed)
	}
	if cls.RegistrationFee <= 0 {
		return CheckoutResult{}, core.NewValidationError(errNoFee, core.FieldError{Field: "registrationFee", Error: errNoFee.Error()})
	}

	notes := map[string]string{
		"user_id":       actor.ID,
		"live_class_id": scope.ClassID,
		"module_id":     scope.ModuleID,
		"payment_type":  string(payment.TypeRegistration),
	}
	if existing != nil {
		notes["subscription_id"] = existing.ID // reactivation of a terminated subscription
	}
	order, err := svc.gateway.CreateOrder(ctx, payment.OrderRequest{
		Type:    payment.TypeRegistration,
		Amount:  cls.RegistrationFee,
		Receipt: receipt("reg", actor.ID),
		Notes:   notes,
	})
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating registration order")
	}

	var result CheckoutResult
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		sub, created, err := svc.lockOrCreate(ctx, exec, newSubscription(actor, scope, StatusRegistered))
		if err != nil {
			return err
		}
		if !created {
			if sub.IsSubscribed() { // registered concurrently
				result = CheckoutResult{AlreadyRegistered: true, Subscription: &sub}
				return nil
			}
			if err = sub.apply(EventCheckout); err != nil {
				return err
			}
			sub.UserEmail, sub.UserName = pick(actor.Email, sub.UserEmail), pick(actor.Name, sub.UserName)
			sub.UpdatedAt = now()
			if sub, err = svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
				return errors.Wrap(err, "updating subscription")
			}
		}
		if err = svc.recordCheckout(ctx, exec, sub, payment.TypeRegistration, order); err != nil {
			return err
		}
		result = CheckoutResult{Order: &order, Subscription: &sub}
		return nil
	})
	return result, err
}

// ConfirmRegistration records a verified registration payment and moves the subscription to PENDING_APPROVAL,
// or straight to ACTIVE for a free target. Any checkout opened for the subscription is accepted. Replaying the
// same payment returns the current subscription.
func (svc *Service) ConfirmRegistration(ctx context.Context, actor core.Actor, scope Scope, proof payment.Proof) (Subscription, error) {
	if !svc.gateway.Verify(proof) {
		return Subscription{}, payment.ErrInvalidSignature
	}
	cls, mod, err := svc.target(ctx, scope)
	if err != nil {
		return Subscription{}, err
	}
	free := isFree(cls, mod)

	var result Subscription
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if sub, done, err := svc.replayed(ctx, actor, proof, exec); err != nil || done {
			result = sub
			return err
		}

		cur, err := svc.findByScope(ctx, actor.ID, scope, exec)
		if err != nil {
			return err
		}
		co, err := svc.issuedCheckout(ctx, exec, cur, payment.TypeRegistration, proof.OrderID)
		if err != nil {
			return err
		}
		if cur.IsSubscribed() {
			result, err = svc.recordSurplus(ctx, exec, *cur, co, proof)
			return err
		}
		sub := *cur

		ts := now()
		if free {
			err = sub.apply(EventFreeEnrollment)
		} else {
			err = sub.apply(EventRegistrationPaid)
		}
		if err != nil {
			return err
		}
		sub.IsRegistered = true
		sub.IsApproved = free
		sub.HasAccessToLinks = free
		sub.RegistrationPaymentID = proof.PaymentID
		sub.StartDate = &ts
		sub.EndDate = endDate(cls, mod)
		sub.UpdatedAt = ts
		if sub, err = svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating subscription")
		}

		if err = svc.recordPayment(ctx, exec, sub, co, proof); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if errors.Cause(err) == payment.ErrDuplicate {
		return svc.subscriptionForPayment(ctx, actor, proof.PaymentID)
	}
	return result, err
}

// Approve clears a PENDING_APPROVAL registration.
func (svc *Service) Approve(ctx context.Context, id string) (Subscription, error) {
	sub, err := svc.transition(ctx, id, func(sub *Subscription) error {
		if err := sub.apply(EventApprove); err != nil {
			return err
		}
		sub.IsApproved = true
		if sub.StartDate == nil {
			ts := now()
			sub.StartDate = &ts
		}
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	if cls, err := svc.classes.GetLiveClass(ctx, liveclass.GetFilter{ID: sub.LiveClassID}); err == nil {
		svc.notify(sub, "Registration approved", "subscription_approved", cls, cls.CourseFeeEnabled && !sub.HasAccessToLinks)
	}
	return sub, nil
}

// Reject turns down a PENDING_APPROVAL registration. A new registration payment is needed to apply again.
func (svc *Service) Reject(ctx context.Context, id string) (Subscription, error) {
	sub, err := svc.transition(ctx, id, func(sub *Subscription) error {
		if err := sub.apply(EventReject); err != nil {
			return err
		}
		sub.clearAccess()
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	if cls, err := svc.classes.GetLiveClass(ctx, liveclass.GetFilter{ID: sub.LiveClassID}); err == nil {
		svc.notify(sub, "Registration not approved", "subscription_rejected", cls, false)
	}
	return sub, nil
}

// Cancel terminates a subscription on behalf of its owner or an admin.
func (svc *Service) Cancel(ctx context.Context, actor core.Actor, id string) (Subscription, error) {
	return svc.transition(ctx, id, func(sub *Subscription) error {
		if !actor.Owns(sub.UserID) {
			return ErrNotFound
		}
		if err := sub.apply(EventCancel); err != nil {
			return err
		}
		sub.clearAccess()
		return nil
	})
}

// InitiateCourseAccess opens a course fee checkout for an approved registration.
func (svc *Service) InitiateCourseAccess(ctx context.Context, actor core.Actor, scope Scope) (CheckoutResult, error) {
	cls, _, err := svc.target(ctx, scope)
	if err != nil {
		return CheckoutResult{}, err
	}
	sub, err := svc.findByScope(ctx, actor.ID, scope)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err = checkCourseAccessAllowed(sub); err != nil {
		return CheckoutResult{}, err
	}
	if Resolve(sub, cls).HasAccessToLinks {
		return CheckoutResult{AlreadyHasAccess: true, Subscription: sub}, nil
	}
	if _, err = Next(sub.Status, EventCourseAccessPaid); err != nil {
		return CheckoutResult{}, err
	}
	if cls.CourseFee <= 0 {
		return CheckoutResult{}, core.NewValidationError(errNoFee, core.FieldError{Field: "courseFee", Error: errNoFee.Error()})
	}

	order, err := svc.gateway.CreateOrder(ctx, payment.OrderRequest{
		Type:    payment.TypeCourseAccess,
		Amount:  cls.CourseFee,
		Receipt: receipt("crs", actor.ID),
		Notes: map[string]string{
			"user_id":         actor.ID,
			"live_class_id":   scope.ClassID,
			"module_id":       scope.ModuleID,
			"subscription_id": sub.ID,
			"payment_type":    string(payment.TypeCourseAccess),
		},
	})
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating course access order")
	}

	var result CheckoutResult
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		cur, err := svc.findByScope(ctx, actor.ID, scope, exec)
		if err != nil {
			return err
		}
		if err = checkCourseAccessAllowed(cur); err != nil {
			return err
		}
		if cur.HasAccessToLinks {
			result = CheckoutResult{AlreadyHasAccess: true, Subscription: cur}
			return nil
		}
		if err = svc.recordCheckout(ctx, exec, *cur, payment.TypeCourseAccess, order); err != nil {
			return err
		}
		result = CheckoutResult{Order: &order, Subscription: cur}
		return nil
	})
	return result, err
}

// ConfirmCourseAccess records a verified course fee payment and unlocks the meeting links.
// Replaying the same payment returns the current subscription.
func (svc *Service) ConfirmCourseAccess(ctx context.Context, actor core.Actor, scope Scope, proof payment.Proof) (Subscription, error) {
	if !svc.gateway.Verify(proof) {
		return Subscription{}, payment.ErrInvalidSignature
	}
	cls, _, err := svc.target(ctx, scope)
	if err != nil {
		return Subscription{}, err
	}

	var result Subscription
	var granted bool
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if sub, done, err := svc.replayed(ctx, actor, proof, exec); err != nil || done {
			result = sub
			return err
		}

		cur, err := svc.findByScope(ctx, actor.ID, scope, exec)
		if err != nil {
			return err
		}
		if err = checkCourseAccessAllowed(cur); err != nil {
			return err
		}
		co, err := svc.issuedCheckout(ctx, exec, cur, payment.TypeCourseAccess, proof.OrderID)
		if err != nil {
			return err
		}
		if cur.HasAccessToLinks {
			result, err = svc.recordSurplus(ctx, exec, *cur, co, proof)
			return err
		}
		sub := *cur
		if err = sub.apply(EventCourseAccessPaid); err != nil {
			return err
		}
		sub.IsApproved = true
		sub.HasAccessToLinks = true
		sub.NextPaymentDate = nil
		sub.UpdatedAt = now()
		if sub, err = svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating subscription")
		}

		if err = svc.recordPayment(ctx, exec, sub, co, proof); err != nil {
			return err
		}
		result = sub
		granted = true
		return nil
	})
	if errors.Cause(err) == payment.ErrDuplicate {
		return svc.subscriptionForPayment(ctx, actor, proof.PaymentID)
	}
	if err != nil {
		return Subscription{}, err
	}
	if granted {
		svc.notify(result, "Course access granted", "course_access_granted", cls, false)
	}
	return result, nil
}

// Check resolves what actor can see of scope. A free target of a listed class is enrolled on the fly
// when the user never subscribed to it.
func (svc *Service) Check(ctx context.Context, actor core.Actor, scope Scope) (View, liveclass.LiveClass, error) {
	cls, mod, err := svc.target(ctx, scope)
	if err != nil {
		return View{}, liveclass.LiveClass{}, err
	}
	sub, err := svc.findByScope(ctx, actor.ID, scope)
	if err != nil {
		return View{}, liveclass.LiveClass{}, err
	}
	if cls.IsActive && isFree(cls, mod) && (sub == nil || sub.Status == StatusRegistered) {
		enrolled, err := svc.enrollFree(ctx, actor, cls, scope, false)
		if err != nil {
			return View{}, liveclass.LiveClass{}, err
		}
		sub = &enrolled
	}
	return NewView(sub, cls, scope), cls, nil
}

// ExpireLapsed expires the live subscriptions whose end date is before t. It returns how many were expired.
func (svc *Service) ExpireLapsed(ctx context.Context, t time.Time) (int, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, QueryFilter{
		Statuses:      []Status{StatusPendingApproval, StatusActive},
		EndDateBefore: t,
	}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying lapsed subscriptions")
	}

	var n int
	for _, s := range subs {
		_, err := svc.transition(ctx, s.ID, func(sub *Subscription) error {
			if sub.EndDate == nil || !sub.EndDate.Before(t) {
				return errSkip
			}
			if err := sub.apply(EventExpire); err != nil {
				return err
			}
			sub.clearAccess()
			return nil
		})
		switch errors.Cause(err) {
		case nil:
			n++
		case errSkip, ErrInvalidState:
		default:
			return n, errors.Wrapf(err, "expiring subscription %s", s.ID)
		}
	}
	return n, nil
}

var errSkip = errors.New("skip")

func (svc *Service) Get(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, GetFilter{ID: id})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, filter, ordering)
}

func (svc *Service) Payments(ctx context.Context, subscriptionID string) ([]payment.Payment, error) {
	return svc.repo.QueryPayments(ctx, subscriptionID)
}

// transition locks the subscription, lets mutate change it, and saves the result in one transaction.
func (svc *Service) transition(ctx context.Context, id string, mutate func(sub *Subscription) error) (Subscription, error) {
	var result Subscription
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		sub, err := svc.repo.GetSubscription(ctx, GetFilter{ID: id, ForUpdate: true}, exec)
		if err != nil {
			return errors.Wrap(err, "getting subscription")
		}
		if err = mutate(&sub); err != nil {
			return err
		}
		sub.UpdatedAt = now()
		result, err = svc.repo.UpdateSubscription(ctx, sub, exec)
		return errors.Wrap(err, "updating subscription")
	})
	return result, err
}

// enrollFree activates the subscription of a free target without any payment.
// Unless reactivate is set, a terminated subscription is left alone.
func (svc *Service) enrollFree(ctx context.Context, actor core.Actor, cls liveclass.LiveClass, scope Scope, reactivate bool) (Subscription, error) {
	var result Subscription
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		ts := now()
		newSub := newSubscription(actor, scope, StatusActive)
		newSub.IsRegistered, newSub.IsApproved, newSub.HasAccessToLinks = true, true, true
		newSub.StartDate = &ts
		newSub.EndDate = endDate(cls, nil)
		if mod, ok := cls.Module(scope.ModuleID); ok {
			newSub.EndDate = endDate(cls, &mod)
		}

		sub, created, err := svc.lockOrCreate(ctx, exec, newSub)
		if err != nil {
			return err
		}
		if created || (sub.Status == StatusActive && sub.HasAccessToLinks && sub.IsRegistered && sub.IsApproved) {
			result = sub
			return nil
		}
		if sub.Status.IsTerminal() && !reactivate {
			result = sub
			return nil
		}
		if err = sub.apply(EventFreeEnrollment); err != nil {
			return err
		}
		sub.IsRegistered, sub.IsApproved, sub.HasAccessToLinks = true, true, true
		sub.StartDate, sub.EndDate = newSub.StartDate, newSub.EndDate
		sub.UpdatedAt = ts
		result, err = svc.repo.UpdateSubscription(ctx, sub, exec)
		return errors.Wrap(err, "updating subscription")
	})
	return result, err
}

// replayed detects a payment that was already recorded and returns the subscription it belongs to.
func (svc *Service) replayed(ctx context.Context, actor core.Actor, proof payment.Proof, exec core.DBExecutor) (Subscription, bool, error) {
	p, err := svc.repo.GetPayment(ctx, proof.PaymentID, exec)
	if err != nil {
		if errors.Cause(err) == payment.ErrNotFound {
			return Subscription{}, false, nil
		}
		return Subscription{}, false, errors.Wrap(err, "getting payment")
	}
	if p.UserID != actor.ID || p.ProviderOrderID != proof.OrderID {
		return Subscription{}, true, core.NewValidationError(errUnknownOrder)
	}
	sub, err := svc.repo.GetSubscription(ctx, GetFilter{ID: p.SubscriptionID}, exec)
	return sub, true, errors.Wrap(err, "getting paid subscription")
}

func (svc *Service) subscriptionForPayment(ctx context.Context, actor core.Actor, providerPaymentID string) (Subscription, error) {
	var result Subscription
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		p, err := svc.repo.GetPayment(ctx, providerPaymentID, exec)
		if err != nil {
			return errors.Wrap(err, "getting payment")
		}
		if p.UserID != actor.ID {
			return core.NewValidationError(errUnknownOrder)
		}
		result, err = svc.repo.GetSubscription(ctx, GetFilter{ID: p.SubscriptionID}, exec)
		return errors.Wrap(err, "getting paid subscription")
	})
	return result, err
}

func (svc *Service) recordCheckout(ctx context.Context, exec core.DBExecutor, sub Subscription, typ payment.Type, order payment.Order) error {
	err := svc.repo.CreateCheckout(ctx, payment.Checkout{
		OrderID:        order.ID,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Type:           typ,
		Amount:         order.Amount,
		Currency:       pick(order.Currency, svc.currency),
		CreatedAt:      now(),
	}, exec)
	return errors.Wrap(err, "recording checkout")
}

// issuedCheckout returns the checkout of orderID if it was opened for sub and typ.
func (svc *Service) issuedCheckout(ctx context.Context, exec core.DBExecutor, sub *Subscription, typ payment.Type, orderID string) (payment.Checkout, error) {
	if sub == nil {
		return payment.Checkout{}, core.NewValidationError(errUnknownOrder)
	}
	co, err := svc.repo.GetCheckout(ctx, orderID, exec)
	if err != nil {
		if errors.Cause(err) == payment.ErrNotFound {
			return payment.Checkout{}, core.NewValidationError(errUnknownOrder)
		}
		return payment.Checkout{}, errors.Wrap(err, "getting checkout")
	}
	if co.SubscriptionID != sub.ID || co.UserID != sub.UserID || co.Type != typ {
		return payment.Checkout{}, core.NewValidationError(errUnknownOrder)
	}
	return co, nil
}

// recordSurplus keeps the trace of a payment made on a checkout whose purpose another checkout already served.
// The subscription is left as is; the payment is flagged in the logs so it can be refunded.
func (svc *Service) recordSurplus(ctx context.Context, exec core.DBExecutor, sub Subscription, co payment.Checkout, proof payment.Proof) (Subscription, error) {
	if err := svc.recordPayment(ctx, exec, sub, co, proof); err != nil {
		return Subscription{}, err
	}
	svc.logger.Warn(fmt.Sprintf("surplus %s payment %s on order %s for subscription %s", co.Type, proof.PaymentID, co.OrderID, sub.ID))
	return sub, nil
}

func (svc *Service) recordPayment(ctx context.Context, exec core.DBExecutor, sub Subscription, co payment.Checkout, proof payment.Proof) error {
	_, err := svc.repo.CreatePayment(ctx, payment.Payment{
		SubscriptionID:    sub.ID,
		UserID:            sub.UserID,
		Type:              co.Type,
		Amount:            co.Amount,
		Currency:          pick(co.Currency, svc.currency),
		ProviderOrderID:   proof.OrderID,
		ProviderPaymentID: proof.PaymentID,
		ProviderSignature: proof.Signature,
		CreatedAt:         now(),
	}, exec)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return nil
}

func checkCourseAccessAllowed(sub *Subscription) error {
	if sub == nil || !sub.IsSubscribed() {
		return ErrNotRegistered
	}
	if !sub.IsApproved {
		return ErrNotApproved
	}
	return nil
}

func endDate(cls liveclass.LiveClass, mod *liveclass.Module) *time.Time {
	end := cls.EndsAt
	if mod != nil && !mod.EndsAt.IsZero() {
		end = mod.EndsAt
	}
	if end.IsZero() {
		return nil
	}
	end = end.UTC()
	return &end
}

// receipt builds a provider receipt id; razorpay caps them at 40 characters.
func receipt(prefix, userID string) string {
	r := fmt.Sprintf("%s_%s_%d", prefix, userID, now().Unix())
	if len(r) > 40 {
		r = r[:40]
	}
	return r
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

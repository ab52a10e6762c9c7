package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

const (
	subscriptionColumns = `id, user_id, user_email, user_name, live_class_id, module_id, status,
		is_registered, is_approved, has_access_to_links, start_date, end_date, next_payment_date,
		registration_payment_id, created_at, updated_at`
	paymentColumns = `id, subscription_id, user_id, payment_type, amount, currency,
		provider_order_id, provider_payment_id, provider_signature, created_at`
	checkoutColumns = `provider_order_id, subscription_id, user_id, payment_type, amount, currency, created_at`
)

// SubscriptionOrderings lists the columns subscriptions can be sorted by.
var SubscriptionOrderings = map[string]bool{"created_at": true, "updated_at": true, "status": true, "user_id": true}

type subscriptionRow struct {
	ID                    string      `db:"id"`
	UserID                string      `db:"user_id"`
	UserEmail             string      `db:"user_email"`
	UserName              string      `db:"user_name"`
	LiveClassID           string      `db:"live_class_id"`
	ModuleID              null.String `db:"module_id"`
	Status                string      `db:"status"`
	IsRegistered          bool        `db:"is_registered"`
	IsApproved            bool        `db:"is_approved"`
	HasAccessToLinks      bool        `db:"has_access_to_links"`
	StartDate             null.Time   `db:"start_date"`
	EndDate               null.Time   `db:"end_date"`
	NextPaymentDate       null.Time   `db:"next_payment_date"`
	RegistrationPaymentID null.String `db:"registration_payment_id"`
	CreatedAt             time.Time   `db:"created_at"`
	UpdatedAt             time.Time   `db:"updated_at"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toSubscriptionRow(sub subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:                    sub.ID,
		UserID:                sub.UserID,
		UserEmail:             sub.UserEmail,
		UserName:              sub.UserName,
		LiveClassID:           sub.LiveClassID,
		ModuleID:              null.NewString(sub.ModuleID, sub.ModuleID != ""),
		Status:                string(sub.Status),
		IsRegistered:          sub.IsRegistered,
		IsApproved:            sub.IsApproved,
		HasAccessToLinks:      sub.HasAccessToLinks,
		StartDate:             null.TimeFromPtr(utcPtr(sub.StartDate)),
		EndDate:               null.TimeFromPtr(utcPtr(sub.EndDate)),
		NextPaymentDate:       null.TimeFromPtr(utcPtr(sub.NextPaymentDate)),
		RegistrationPaymentID: null.NewString(sub.RegistrationPaymentID, sub.RegistrationPaymentID != ""),
		CreatedAt:             sub.CreatedAt.UTC(),
		UpdatedAt:             sub.UpdatedAt.UTC(),
	}
}

func (row subscriptionRow) subscription() subscription.Subscription {
	return subscription.Subscription{
		ID:                    row.ID,
		UserID:                row.UserID,
		UserEmail:             row.UserEmail,
		UserName:              row.UserName,
		LiveClassID:           row.LiveClassID,
		ModuleID:              row.ModuleID.String,
		Status:                subscription.Status(row.Status),
		IsRegistered:          row.IsRegistered,
		IsApproved:            row.IsApproved,
		HasAccessToLinks:      row.HasAccessToLinks,
		StartDate:             utcPtr(row.StartDate.Ptr()),
		EndDate:               utcPtr(row.EndDate.Ptr()),
		NextPaymentDate:       utcPtr(row.NextPaymentDate.Ptr()),
		RegistrationPaymentID: row.RegistrationPaymentID.String,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
}

type subscriptionRepository struct {
	base
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) *subscriptionRepository {
	return &subscriptionRepository{base: newBase(db)}
}

func (repo subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription, exec ...core.DBExecutor) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	row := toSubscriptionRow(sub)

	// a concurrent insert for the same user and scope loses silently
	q := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (
		:id, :user_id, :user_email, :user_name, :live_class_id, :module_id, :status,
		:is_registered, :is_approved, :has_access_to_links, :start_date, :end_date, :next_payment_date,
		:registration_payment_id, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	if n == 0 {
		return subscription.Subscription{}, subscription.ErrConflict
	}
	return row.subscription(), nil
}

func (repo subscriptionRepository) GetSubscription(ctx context.Context, filter subscription.GetFilter, exec ...core.DBExecutor) (subscription.Subscription, error) {
	var (
		conds []string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		args = append(args, filter.ID)
		conds = append(conds, "id = $1")
		if filter.UserID != "" {
			args = append(args, filter.UserID)
			conds = append(conds, "user_id = $2")
		}
	case filter.UserID != "" && filter.Scope != nil:
		args = append(args, filter.UserID, filter.Scope.ClassID, filter.Scope.ModuleID)
		conds = append(conds, "user_id = $1", "live_class_id = $2", "COALESCE(module_id, '') = $3")
	default:
		return subscription.Subscription{}, subscription.ErrNotFound
	}

	var row subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + strings.Join(conds, " AND ") + forUpdate(filter.ForUpdate)
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "selecting subscription")
	}
	return row.subscription(), nil
}

// buildQuery renders the WHERE and ORDER BY clauses of filter and ordering.
// Ordering fields not listed in SubscriptionOrderings are ignored.
func buildQuery(filter subscription.QueryFilter, ordering []core.DBOrdering) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ClassID != "" {
		conds = append(conds, "live_class_id = "+arg(filter.ClassID))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if !filter.EndDateBefore.IsZero() {
		conds = append(conds, "end_date < "+arg(filter.EndDateBefore.UTC()))
	}

	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if SubscriptionOrderings[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, core.DBOrdering{Field: "created_at"}.String())
	}
	orderList = append(orderList, "id ASC")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderList, ", "))
	return sb.String(), args
}

func (repo subscriptionRepository) QuerySubscriptions(
	ctx context.Context,
	filter subscription.QueryFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]subscription.Subscription, error) {
	clauses, args := buildQuery(filter, ordering)

	var rows []subscriptionRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, `SELECT `+subscriptionColumns+` FROM subscriptions`+clauses, args...); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.subscription())
	}
	return subs, nil
}

func (repo subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription, exec ...core.DBExecutor) (subscription.Subscription, error) {
	var saved subscription.Subscription
	err := repo.inTx(ctx, exec, func(ext sqlx.ExtContext) error {
		// identity and scope never change
		res, err := sqlx.NamedExecContext(ctx, ext, `UPDATE subscriptions SET
			user_email = :user_email, user_name = :user_name, status = :status,
			is_registered = :is_registered, is_approved = :is_approved, has_access_to_links = :has_access_to_links,
			start_date = :start_date, end_date = :end_date, next_payment_date = :next_payment_date,
			registration_payment_id = :registration_payment_id,
			updated_at = :updated_at
			WHERE id = :id`, toSubscriptionRow(sub))
		if err != nil {
			return errors.Wrap(err, "updating subscription")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return subscription.ErrNotFound
		}

		var row subscriptionRow
		if err = sqlx.GetContext(ctx, ext, &row, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, sub.ID); err != nil {
			return errors.Wrap(err, "selecting updated subscription")
		}
		saved = row.subscription()
		return nil
	})
	return saved, err
}

func (repo subscriptionRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = p.CreatedAt.UTC()

	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (
		:id, :subscription_id, :user_id, :payment_type, :amount, :currency,
		:provider_order_id, :provider_payment_id, :provider_signature, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, p); err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return payment.Payment{}, payment.ErrDuplicate
		case foreignKeyViolation:
			return payment.Payment{}, subscription.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo subscriptionRepository) GetPayment(ctx context.Context, providerPaymentID string, exec ...core.DBExecutor) (payment.Payment, error) {
	var p payment.Payment
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &p, q, providerPaymentID); err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "selecting payment")
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (repo subscriptionRepository) QueryPayments(ctx context.Context, subscriptionID string, exec ...core.DBExecutor) ([]payment.Payment, error) {
	payments := make([]payment.Payment, 0)
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE subscription_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &payments, q, subscriptionID); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return payments, nil
}

func (repo subscriptionRepository) CreateCheckout(ctx context.Context, c payment.Checkout, exec ...core.DBExecutor) error {
	c.CreatedAt = c.CreatedAt.UTC()

	q := `INSERT INTO payment_checkouts (` + checkoutColumns + `) VALUES (
		:provider_order_id, :subscription_id, :user_id, :payment_type, :amount, :currency, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, c); err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return payment.ErrDuplicate
		case foreignKeyViolation:
			return subscription.ErrNotFound
		}
		return errors.Wrap(err, "inserting checkout")
	}
	return nil
}

func (repo subscriptionRepository) GetCheckout(ctx context.Context, providerOrderID string, exec ...core.DBExecutor) (payment.Checkout, error) {
	var c payment.Checkout
	q := `SELECT ` + checkoutColumns + ` FROM payment_checkouts WHERE provider_order_id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &c, q, providerOrderID); err != nil {
		if err == sql.ErrNoRows {
			return payment.Checkout{}, payment.ErrNotFound
		}
		return payment.Checkout{}, errors.Wrap(err, "selecting checkout")
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

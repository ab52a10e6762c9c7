package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, sub subscription.Subscription, _ ...core.DBExecutor) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[sub.LiveClassID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	for _, s := range repo.db.subscriptions {
		if s.UserID == sub.UserID && s.Scope() == sub.Scope() {
			return subscription.Subscription{}, subscription.ErrConflict
		}
	}
	sub = cloneSubscription(sub)
	sub.ID = uuid.New().String()
	repo.db.subscriptions[sub.ID] = sub
	return cloneSubscription(sub), nil
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, filter subscription.GetFilter, _ ...core.DBExecutor) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		sub, ok := repo.db.subscriptions[filter.ID]
		if !ok || (filter.UserID != "" && sub.UserID != filter.UserID) {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return cloneSubscription(sub), nil
	}
	if filter.Scope == nil || filter.UserID == "" {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	for _, sub := range repo.db.subscriptions {
		if sub.UserID == filter.UserID && sub.Scope() == *filter.Scope {
			return cloneSubscription(sub), nil
		}
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) QuerySubscriptions(
	_ context.Context,
	filter subscription.QueryFilter,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]subscription.Subscription, 0)
	for _, sub := range repo.db.subscriptions {
		if filter.ClassID != "" && sub.LiveClassID != filter.ClassID {
			continue
		}
		if filter.UserID != "" && sub.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, sub.Status) {
			continue
		}
		if !filter.EndDateBefore.IsZero() && (sub.EndDate == nil || !sub.EndDate.Before(filter.EndDateBefore)) {
			continue
		}
		subs = append(subs, cloneSubscription(sub))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareSubscriptions(subs[i], subs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, sub subscription.Subscription, _ ...core.DBExecutor) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.subscriptions[sub.ID]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	// identity and scope never change
	sub.UserID = orig.UserID
	sub.LiveClassID = orig.LiveClassID
	sub.ModuleID = orig.ModuleID
	sub.CreatedAt = orig.CreatedAt
	repo.db.subscriptions[sub.ID] = cloneSubscription(sub)
	return cloneSubscription(sub), nil
}

func (repo *subscriptionRepository) CreatePayment(_ context.Context, p payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscriptions[p.SubscriptionID]; !ok {
		return payment.Payment{}, subscription.ErrNotFound
	}
	for _, existing := range repo.db.payments {
		if existing.ProviderPaymentID == p.ProviderPaymentID {
			return payment.Payment{}, payment.ErrDuplicate
		}
	}
	p.ID = uuid.New().String()
	repo.db.payments[p.ID] = p
	return p, nil
}

func (repo *subscriptionRepository) GetPayment(_ context.Context, providerPaymentID string, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.payments {
		if p.ProviderPaymentID == providerPaymentID {
			return p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *subscriptionRepository) QueryPayments(_ context.Context, subscriptionID string, _ ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.payments {
		if p.SubscriptionID == subscriptionID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

func (repo *subscriptionRepository) CreateCheckout(_ context.Context, c payment.Checkout, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscriptions[c.SubscriptionID]; !ok {
		return subscription.ErrNotFound
	}
	if _, ok := repo.db.checkouts[c.OrderID]; ok {
		return payment.ErrDuplicate
	}
	repo.db.checkouts[c.OrderID] = c
	return nil
}

func (repo *subscriptionRepository) GetCheckout(_ context.Context, providerOrderID string, _ ...core.DBExecutor) (payment.Checkout, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.checkouts[providerOrderID]
	if !ok {
		return payment.Checkout{}, payment.ErrNotFound
	}
	return c, nil
}

func hasStatus(statuses []subscription.Status, s subscription.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareSubscriptions(a, b subscription.Subscription, field string) int {
	switch field {
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "user_id":
		return compareStrings(a.UserID, b.UserID)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

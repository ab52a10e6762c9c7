package sqlxrepos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
	logsvc "github.com/trezcool/masomo-live/services/logger"
	"github.com/trezcool/masomo-live/storage/database"
	testutil "github.com/trezcool/masomo-live/tests"
)

func placeholder(userID string, scope subscription.Scope) subscription.Subscription {
	ts := time.Now().UTC()
	return subscription.Subscription{
		UserID:      userID,
		LiveClassID: scope.ClassID,
		ModuleID:    scope.ModuleID,
		Status:      subscription.StatusRegistered,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func TestSubscriptionRepository_Postgres(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	classes := NewLiveClassRepository(db)
	repo := NewSubscriptionRepository(db)

	cls := testutil.CreateLiveClass(t, classes, testutil.ClassSpec{
		RegistrationFee: 50000,
		Modules:         []testutil.ModuleSpec{{Title: "Basics"}},
	})
	classScope := subscription.ClassScope(cls.ID)
	modScope := subscription.ModuleScope(cls.ID, cls.Modules[0].ID)

	classSub, err := repo.CreateSubscription(ctx, placeholder("u1", classScope))
	require.NoError(t, err)

	t.Run("class scope conflicts despite the null module", func(t *testing.T) {
		_, err := repo.CreateSubscription(ctx, placeholder("u1", classScope))
		assert.Equal(t, subscription.ErrConflict, errors.Cause(err))
	})

	t.Run("module scope is another tuple", func(t *testing.T) {
		modSub, err := repo.CreateSubscription(ctx, placeholder("u1", modScope))
		require.NoError(t, err)
		assert.NotEqual(t, classSub.ID, modSub.ID)

		got, err := repo.GetSubscription(ctx, subscription.GetFilter{UserID: "u1", Scope: &classScope})
		require.NoError(t, err)
		assert.Equal(t, classSub.ID, got.ID)
		assert.Empty(t, got.ModuleID)

		got, err = repo.GetSubscription(ctx, subscription.GetFilter{UserID: "u1", Scope: &modScope})
		require.NoError(t, err)
		assert.Equal(t, modSub.ID, got.ID)
		assert.Equal(t, cls.Modules[0].ID, got.ModuleID)

		_, err = repo.GetSubscription(ctx, subscription.GetFilter{UserID: "u2", Scope: &modScope})
		assert.Equal(t, subscription.ErrNotFound, errors.Cause(err))
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := repo.CreateSubscription(ctx, placeholder("u1", subscription.ClassScope("nope")))
		assert.Equal(t, subscription.ErrNotFound, errors.Cause(err))
	})

	t.Run("duplicate provider payment id", func(t *testing.T) {
		p := payment.Payment{
			SubscriptionID:    classSub.ID,
			UserID:            "u1",
			Type:              payment.TypeRegistration,
			Amount:            50000,
			Currency:          "INR",
			ProviderOrderID:   "order_1",
			ProviderPaymentID: "pay_1",
			ProviderSignature: "sig",
			CreatedAt:         time.Now(),
		}
		_, err := repo.CreatePayment(ctx, p)
		require.NoError(t, err)
		_, err = repo.CreatePayment(ctx, p)
		assert.Equal(t, payment.ErrDuplicate, errors.Cause(err))

		got, err := repo.GetPayment(ctx, "pay_1")
		require.NoError(t, err)
		assert.Equal(t, classSub.ID, got.SubscriptionID)

		payments, err := repo.QueryPayments(ctx, classSub.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("checkouts", func(t *testing.T) {
		co := payment.Checkout{
			OrderID:        "order_2",
			SubscriptionID: classSub.ID,
			UserID:         "u1",
			Type:           payment.TypeCourseAccess,
			Amount:         100000,
			Currency:       "INR",
			CreatedAt:      time.Now(),
		}
		require.NoError(t, repo.CreateCheckout(ctx, co))
		assert.Equal(t, payment.ErrDuplicate, errors.Cause(repo.CreateCheckout(ctx, co)))

		got, err := repo.GetCheckout(ctx, "order_2")
		require.NoError(t, err)
		assert.Equal(t, co.SubscriptionID, got.SubscriptionID)
		assert.Equal(t, payment.TypeCourseAccess, got.Type)
		assert.Equal(t, int64(100000), got.Amount)

		_, err = repo.GetCheckout(ctx, "order_nope")
		assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
	})
}

func TestSubscriptionRepository_ConcurrentPlaceholders(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	cls := testutil.CreateLiveClass(t, NewLiveClassRepository(db), testutil.ClassSpec{RegistrationFee: 50000})
	repo := NewSubscriptionRepository(db)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CreateSubscription(ctx, placeholder("u1", subscription.ClassScope(cls.ID)))
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch errors.Cause(err) {
		case nil:
			created++
		case subscription.ErrConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
}

func TestSubscriptionService_Postgres(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	classes := NewLiveClassRepository(db)
	repo := NewSubscriptionRepository(db)
	svc := subscription.NewService(subscription.ServiceDeps{
		Repo:     repo,
		Classes:  classes,
		Gateway:  new(testutil.FakeGateway),
		Tx:       database.NewTransactor(db),
		Logger:   logsvc.NewNopLogger(),
		Currency: "INR",
	})
	cls := testutil.CreateLiveClass(t, classes, testutil.ClassSpec{RegistrationFee: 50000, CourseFee: 100000, CourseFeeEnabled: true})
	scope := subscription.ClassScope(cls.ID)
	student := core.Actor{ID: "u1", Email: "ada@example.com", Name: "Ada"}

	t.Run("concurrent checkouts share one row", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.InitiateRegistration(ctx, student, scope)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		subs, err := svc.Query(ctx, subscription.QueryFilter{UserID: student.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("double confirm records one payment", func(t *testing.T) {
		res, err := svc.InitiateRegistration(ctx, student, scope)
		require.NoError(t, err)
		require.NotNil(t, res.Order)
		proof := testutil.Pay(*res.Order, "pay_pg_1")

		const n = 4
		var wg sync.WaitGroup
		subs := make([]subscription.Subscription, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				subs[i], errs[i] = svc.ConfirmRegistration(ctx, student, scope, proof)
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, res.Subscription.ID, subs[i].ID)
			assert.Equal(t, subscription.StatusPendingApproval, subs[i].Status)
		}
		payments, err := svc.Payments(ctx, res.Subscription.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})
}

func TestLiveClassRepository_SaveMeetings_Postgres(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	classes := NewLiveClassRepository(db)
	meetings := testutil.NewFakeMeetings()
	live := liveclass.NewService(classes, meetings, database.NewTransactor(db), logsvc.NewNopLogger())
	cls := testutil.CreateLiveClass(t, classes, testutil.ClassSpec{
		Modules: []testutil.ModuleSpec{{Title: "Basics"}, {Title: "Concurrency"}},
	})

	on, err := live.SetLive(ctx, cls.ID, true)
	require.NoError(t, err)
	require.NotNil(t, on.Meeting)

	stored, err := classes.GetLiveClass(ctx, liveclass.GetFilter{ID: cls.ID})
	require.NoError(t, err)
	assert.True(t, stored.IsOnClassroom)
	require.NotNil(t, stored.Meeting)
	assert.Equal(t, on.Meeting.HostLink, stored.Meeting.HostLink)
	require.Len(t, stored.Modules, 2)
	for _, m := range stored.Modules {
		require.NotNil(t, m.Meeting, "module %s", m.Title)
	}

	// one module room cannot be deleted remotely; it is cleared locally all the same
	meetings.FailDelete[stored.Modules[1].Meeting.MeetingID] = true
	_, err = live.SetLive(ctx, cls.ID, false)
	require.NoError(t, err)

	stored, err = classes.GetLiveClass(ctx, liveclass.GetFilter{ID: cls.ID})
	require.NoError(t, err)
	assert.False(t, stored.IsOnClassroom)
	assert.Nil(t, stored.Meeting)
	for _, m := range stored.Modules {
		assert.Nil(t, m.Meeting, "module %s", m.Title)
	}
}

package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
	"github.com/trezcool/masomo-live/tests"
)

type verifyBody struct {
	ClassID   string `json:"classId"`
	ModuleID  string `json:"moduleId,omitempty"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func verifyPayload(t *testing.T, classID string, proof payment.Proof) []byte {
	return marchallObj(t, verifyBody{
		ClassID:   classID,
		OrderID:   proof.OrderID,
		PaymentID: proof.PaymentID,
		Signature: proof.Signature,
	})
}

func checkout(t *testing.T, path, token string, body []byte) subscription.CheckoutResult {
	t.Helper()
	rec := do(http.MethodPost, path, token, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res subscription.CheckoutResult
	unmarshallObj(t, rec, &res)
	return res
}

func Test_subscriptionApi_lifecycle(t *testing.T) {
	reset()
	cls := testutil.CreateLiveClass(t, classRepo, testutil.ClassSpec{
		Title: "Go", RegistrationFee: 50000, CourseFee: 100000, CourseFeeEnabled: true,
	})
	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)
	classBody := marchallObj(t, map[string]string{"classId": cls.ID})
	checkPath := "/v1/check-subscription/" + cls.ID

	// registration checkout
	res := checkout(t, "/v1/register", studentToken, classBody)
	require.NotNil(t, res.Order)
	assert.Equal(t, int64(50000), res.Order.Amount)
	regOrder := *res.Order

	tampered := testutil.Pay(regOrder, "pay_Reg500")
	tampered.Signature = payment.Sign(regOrder.ID, "pay_Reg500", "wrong_secret")
	runHTTPTests(t, []httpTest{
		{
			name: "verify: tampered signature", method: http.MethodPost, path: "/v1/verify-registration",
			body: verifyPayload(t, cls.ID, tampered), token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid payment signature"}),
		},
		{
			name: "verify: signature required", method: http.MethodPost, path: "/v1/verify-registration",
			body: marchallObj(t, verifyBody{ClassID: cls.ID, OrderID: regOrder.ID, PaymentID: "pay_Reg500"}), token: studentToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"signature": "this field is required"}`),
		},
		{
			name: "course fee before registration is paid", method: http.MethodPost, path: "/v1/pay-course-access",
			body: classBody, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "registration fee not paid"}),
		},
	})

	var sub subscription.Subscription
	t.Run("verify registration", func(t *testing.T) {
		rec := do(http.MethodPost, "/v1/verify-registration", studentToken, verifyPayload(t, cls.ID, testutil.Pay(regOrder, "pay_Reg500")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshallObj(t, rec, &sub)
		assert.Equal(t, subscription.StatusPendingApproval, sub.Status)
		assert.True(t, sub.IsRegistered)
		assert.False(t, sub.IsApproved)

		// the checkout may call back twice
		rec = do(http.MethodPost, "/v1/verify-registration", studentToken, verifyPayload(t, cls.ID, testutil.Pay(regOrder, "pay_Reg500")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var replayed subscription.Subscription
		unmarshallObj(t, rec, &replayed)
		assert.Equal(t, sub.ID, replayed.ID)
		assert.Equal(t, subscription.StatusPendingApproval, replayed.Status)
	})
	require.NotEmpty(t, sub.ID)

	approvePath := fmt.Sprintf("/v1/admin/approve-subscription/%s", sub.ID)
	runHTTPTests(t, []httpTest{
		{
			name: "course fee before approval", method: http.MethodPost, path: "/v1/pay-course-access",
			body: classBody, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "registration not approved yet"}),
		},
		{
			name: "approve: admin required", method: http.MethodPost, path: approvePath, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "approve: unknown subscription", method: http.MethodPost, path: "/v1/admin/approve-subscription/nope",
			token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "subscription not found"}),
		},
		{name: "approve", method: http.MethodPost, path: approvePath, token: adminToken, wantCode: http.StatusOK},
		{
			name: "approve twice", method: http.MethodPost, path: approvePath, token: adminToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "cannot approve from ACTIVE: invalid subscription state"}),
		},
	})

	t.Run("approved without course access", func(t *testing.T) {
		rec := do(http.MethodGet, checkPath, studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view subscription.View
		unmarshallObj(t, rec, &view)
		assert.Equal(t, subscription.StatusActive, view.Status)
		assert.True(t, view.IsApproved)
		assert.False(t, view.HasAccessToLinks)
		assert.False(t, view.CanJoinClass)
		assert.Nil(t, view.MeetingDetails)
	})

	t.Run("course access", func(t *testing.T) {
		res := checkout(t, "/v1/pay-course-access", studentToken, classBody)
		require.NotNil(t, res.Order)
		assert.Equal(t, int64(100000), res.Order.Amount)

		rec := do(http.MethodPost, "/v1/verify-course-access", studentToken, verifyPayload(t, cls.ID, testutil.Pay(*res.Order, "pay_Crs1000")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got struct {
			subscription.Subscription
			CanJoinClass   bool                         `json:"canJoinClass"`
			MeetingDetails *subscription.MeetingDetails `json:"meetingDetails"`
		}
		unmarshallObj(t, rec, &got)
		assert.True(t, got.HasAccessToLinks)
		assert.False(t, got.CanJoinClass, "class is not live yet")
		assert.Nil(t, got.MeetingDetails)

		res = checkout(t, "/v1/pay-course-access", studentToken, classBody)
		assert.True(t, res.AlreadyHasAccess)
		assert.Nil(t, res.Order)
	})

	t.Run("class goes live", func(t *testing.T) {
		rec := do(http.MethodPost, "/v1/admin/class/"+cls.ID+"/toggle-classroom", adminToken, []byte(`{"isOnClassroom": true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		live, err := classRepo.GetLiveClass(ctx(), liveclass.GetFilter{ID: cls.ID})
		require.NoError(t, err)
		require.NotNil(t, live.Meeting)

		rec = do(http.MethodGet, checkPath, studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view subscription.View
		unmarshallObj(t, rec, &view)
		assert.True(t, view.CanJoinClass)
		require.NotNil(t, view.MeetingDetails)
		assert.Equal(t, live.Meeting.JoinLink, view.MeetingDetails.Link)
		assert.Equal(t, live.Meeting.Password, view.MeetingDetails.Password)
		assert.NotContains(t, rec.Body.String(), live.Meeting.HostLink)

		// someone who never paid sees nothing
		rec = do(http.MethodGet, checkPath, getToken(t, stranger))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var strangerView subscription.View
		unmarshallObj(t, rec, &strangerView)
		assert.False(t, strangerView.IsSubscribed)
		assert.False(t, strangerView.CanJoinClass)
		assert.Nil(t, strangerView.MeetingDetails)
	})

	t.Run("payments", func(t *testing.T) {
		rec := do(http.MethodGet, "/v1/admin/subscriptions/"+sub.ID+"/payments", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var pmts []payment.Payment
		unmarshallObj(t, rec, &pmts)
		require.Len(t, pmts, 2)
		types := []payment.Type{pmts[0].Type, pmts[1].Type}
		assert.ElementsMatch(t, []payment.Type{payment.TypeRegistration, payment.TypeCourseAccess}, types)
		assert.NotContains(t, rec.Body.String(), "signature")
	})

	t.Run("emails", func(t *testing.T) {
		var subjects []string
		for _, msg := range mailSvc.SentMessages() {
			subjects = append(subjects, msg.Subject)
		}
		assert.Contains(t, subjects, "Registration approved")
	})
}

func Test_subscriptionApi_register(t *testing.T) {
	reset()
	cls := testutil.CreateLiveClass(t, classRepo, testutil.ClassSpec{
		Title:           "Go",
		RegistrationFee: 50000,
		Modules:         []testutil.ModuleSpec{{Title: "Basics", IsFree: true}, {Title: "Concurrency"}},
	})
	studentToken := getToken(t, student)

	runHTTPTests(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/register", body: []byte(`{"classId": "x"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "classId required", method: http.MethodPost, path: "/v1/register", body: []byte(`{}`), token: studentToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"classId": "this field is required"}`),
		},
		{
			name: "Unknown class", method: http.MethodPost, path: "/v1/register", body: []byte(`{"classId": "nope"}`),
			token: studentToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "live class not found"}),
		},
		{
			name: "Unknown module", method: http.MethodPost, path: "/v1/register",
			body: marchallObj(t, map[string]string{"classId": cls.ID, "moduleId": "nope"}), token: studentToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"moduleId": "module not found in this class"}`),
		},
	})

	t.Run("free module is enrolled on check", func(t *testing.T) {
		free := cls.Modules[0]
		rec := do(http.MethodGet, fmt.Sprintf("/v1/check-subscription/%s?moduleId=%s", cls.ID, free.ID), studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view subscription.View
		unmarshallObj(t, rec, &view)
		assert.Equal(t, subscription.StatusActive, view.Status)
		assert.True(t, view.IsApproved)
		assert.True(t, view.HasAccessToLinks)
		assert.False(t, view.CanJoinClass, "class is not live")

		rec = do(http.MethodGet, "/v1/admin/subscriptions/"+view.SubscriptionID+"/payments", getToken(t, admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("paid module needs a checkout", func(t *testing.T) {
		paid := cls.Modules[1]
		res := checkout(t, "/v1/register", studentToken, marchallObj(t, map[string]string{"classId": cls.ID, "moduleId": paid.ID}))
		require.NotNil(t, res.Order)
		assert.Equal(t, int64(50000), res.Order.Amount)
		require.NotNil(t, res.Subscription)
		assert.Equal(t, subscription.StatusRegistered, res.Subscription.Status)
		assert.Equal(t, paid.ID, res.Subscription.ModuleID)
	})
}

func Test_subscriptionApi_cancelAndReject(t *testing.T) {
	reset()
	cls := testutil.CreateLiveClass(t, classRepo, testutil.ClassSpec{Title: "Go", RegistrationFee: 50000})
	classBody := marchallObj(t, map[string]string{"classId": cls.ID})
	adminToken := getToken(t, admin)

	register := func(t *testing.T, token, paymentID string) subscription.Subscription {
		res := checkout(t, "/v1/register", token, classBody)
		require.NotNil(t, res.Order)
		rec := do(http.MethodPost, "/v1/verify-registration", token, verifyPayload(t, cls.ID, testutil.Pay(*res.Order, paymentID)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sub subscription.Subscription
		unmarshallObj(t, rec, &sub)
		return sub
	}

	ada := register(t, getToken(t, student), "pay_Ada")
	bob := register(t, getToken(t, stranger), "pay_Bob")

	t.Run("approval queue", func(t *testing.T) {
		rec := do(http.MethodGet, "/v1/admin/subscriptions?status=pending_approval&ordering=user_id", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var subs []subscription.Subscription
		unmarshallObj(t, rec, &subs)
		require.Len(t, subs, 2)
		assert.Equal(t, ada.ID, subs[0].ID)
		assert.Equal(t, bob.ID, subs[1].ID)

		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status": "unknown status lol"}`),
		}, do(http.MethodGet, "/v1/admin/subscriptions?status=lol", adminToken))

		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
			do(http.MethodGet, "/v1/admin/subscriptions", getToken(t, student)))
	})

	t.Run("cancel", func(t *testing.T) {
		path := "/v1/cancel-subscription/" + ada.ID
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "subscription not found"})},
			do(http.MethodPost, path, getToken(t, stranger)))

		rec := do(http.MethodPost, path, getToken(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sub subscription.Subscription
		unmarshallObj(t, rec, &sub)
		assert.Equal(t, subscription.StatusCancelled, sub.Status)
		assert.False(t, sub.IsRegistered)

		assert.Equal(t, http.StatusConflict, do(http.MethodPost, path, getToken(t, student)).Code)
	})

	t.Run("reject", func(t *testing.T) {
		rec := do(http.MethodPost, "/v1/admin/reject-subscription/"+bob.ID, adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sub subscription.Subscription
		unmarshallObj(t, rec, &sub)
		assert.Equal(t, subscription.StatusRejected, sub.Status)

		assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/v1/admin/approve-subscription/"+bob.ID, adminToken).Code)
	})
}

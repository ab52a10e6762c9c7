package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestHandler(t *testing.T) {
	before := testutil.ToFloat64(SubscriptionsExpired)
	SubscriptionsExpired.Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(SubscriptionsExpired))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "masomo_live_subscriptions_expired_total")
}

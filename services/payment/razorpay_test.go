package paymentsvc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/payment"
)

type fakeOrders struct {
	got   map[string]interface{}
	body  map[string]interface{}
	err   error
	delay time.Duration
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	time.Sleep(f.delay)
	return f.body, f.err
}

func newGateway(orders orderAPI) *razorpayGateway {
	g := NewRazorpayGateway(core.RazorpayConfig{KeyID: "rzp_test_key", KeySecret: "EnLs21M47BllR3X8PSFtjtbd", Currency: "INR"})
	g.orders = orders
	return g
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	orders := &fakeOrders{body: map[string]interface{}{
		"id": "order_DBJOWzybf0sJbb", "entity": "order", "amount": float64(50000), "currency": "INR", "receipt": "reg_u1_1700000000", "status": "created",
	}}
	g := newGateway(orders)

	order, err := g.CreateOrder(context.Background(), payment.OrderRequest{
		Type:    payment.TypeRegistration,
		Amount:  50000,
		Receipt: "reg_u1_1700000000",
		Notes:   map[string]string{"user_id": "u1", "module_id": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.Order{
		ID:       "order_DBJOWzybf0sJbb",
		Amount:   50000,
		Currency: "INR",
		KeyID:    "rzp_test_key",
		Receipt:  "reg_u1_1700000000",
	}, order)

	assert.Equal(t, int64(50000), orders.got["amount"])
	assert.Equal(t, "INR", orders.got["currency"])
	assert.Equal(t, map[string]interface{}{"user_id": "u1"}, orders.got["notes"])
}

func TestRazorpayGateway_CreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		orders *fakeOrders
	}{
		{name: "provider error", orders: &fakeOrders{err: errors.New("BAD_REQUEST_ERROR")}},
		{name: "no id", orders: &fakeOrders{body: map[string]interface{}{"amount": float64(1)}}},
		{name: "no amount", orders: &fakeOrders{body: map[string]interface{}{"id": "order_1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGateway(tt.orders).CreateOrder(context.Background(), payment.OrderRequest{Amount: 1})
			assert.Error(t, err)
		})
	}

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		g := newGateway(&fakeOrders{delay: time.Second, body: map[string]interface{}{"id": "order_1", "amount": float64(1)}})
		_, err := g.CreateOrder(ctx, payment.OrderRequest{Amount: 1})
		assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	})
}

func TestRazorpayGateway_Verify(t *testing.T) {
	g := newGateway(&fakeOrders{})
	proof := payment.Proof{
		OrderID:   "order_DBJOWzybf0sJbb",
		PaymentID: "pay_DBJOX5K2wHJbtr",
		Signature: "185aa9f361de6502daba1439e9ba8344a2b09b0d104f3dbbc911d92698198915",
	}
	assert.True(t, g.Verify(proof))

	forged := proof
	forged.PaymentID = "pay_DBJOX5K2wHJbts"
	assert.False(t, g.Verify(forged))
}

// Package paymentsvc opens checkouts with Razorpay and verifies the payments they return.
package paymentsvc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/services/metrics"
)

// orderAPI is the part of the razorpay client the gateway uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayGateway struct {
	orders   orderAPI
	keyID    string
	secret   string
	currency string
}

var _ payment.Gateway = (*razorpayGateway)(nil)

func NewRazorpayGateway(conf core.RazorpayConfig) *razorpayGateway {
	client := razorpay.NewClient(conf.KeyID, conf.KeySecret)
	return &razorpayGateway{
		orders:   client.Order,
		keyID:    conf.KeyID,
		secret:   conf.KeySecret,
		currency: conf.Currency,
	}
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (order payment.Order, err error) {
	defer func() {
		metrics.PaymentOrders.WithLabelValues(string(req.Type), metrics.Outcome(err)).Inc()
	}()

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		if v != "" {
			notes[k] = v
		}
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": g.currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := g.orders.Create(data, nil)
		done <- result{body, err}
	}()

	// the client has no context support: stop waiting when ctx ends
	var res result
	select {
	case <-ctx.Done():
		return payment.Order{}, errors.Wrap(ctx.Err(), "creating razorpay order")
	case res = <-done:
	}
	if res.err != nil {
		return payment.Order{}, errors.Wrap(res.err, "creating razorpay order")
	}
	return g.parseOrder(res.body)
}

func (g *razorpayGateway) parseOrder(body map[string]interface{}) (payment.Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return payment.Order{}, errors.Errorf("razorpay order without id: %v", body)
	}
	order := payment.Order{ID: id, KeyID: g.keyID, Currency: g.currency}
	// JSON numbers are decoded as float64
	switch amount := body["amount"].(type) {
	case float64:
		order.Amount = int64(amount)
	case int64:
		order.Amount = amount
	case int:
		order.Amount = int64(amount)
	default:
		return payment.Order{}, errors.Errorf("razorpay order %s: unexpected amount %v", id, body["amount"])
	}
	if currency, ok := body["currency"].(string); ok && currency != "" {
		order.Currency = currency
	}
	if receipt, ok := body["receipt"].(string); ok {
		order.Receipt = receipt
	}
	return order, nil
}

func (g *razorpayGateway) Verify(proof payment.Proof) bool {
	ok := payment.VerifySignature(proof.OrderID, proof.PaymentID, proof.Signature, g.secret)
	metrics.PaymentVerifications.WithLabelValues(fmt.Sprint(ok)).Inc()
	return ok
}

package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Type tags what a Payment paid for.
type Type string

const (
	TypeRegistration Type = "REGISTRATION"
	TypeCourseAccess Type = "COURSE_ACCESS"
)

var (
	// errors
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicate        = errors.New("payment already recorded")
)

type (
	// Payment is an immutable record of one verified external payment.
	Payment struct {
		ID                string    `json:"id" db:"id"`
		SubscriptionID    string    `json:"subscriptionId" db:"subscription_id"`
		UserID            string    `json:"userId" db:"user_id"`
		Type              Type      `json:"paymentType" db:"payment_type"`
		Amount            int64     `json:"amount" db:"amount"` // in the currency's minor unit
		Currency          string    `json:"currency" db:"currency"`
		ProviderOrderID   string    `json:"orderId" db:"provider_order_id"`
		ProviderPaymentID string    `json:"paymentId" db:"provider_payment_id"`
		ProviderSignature string    `json:"-" db:"provider_signature"`
		CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	}

	// Checkout remembers an order opened with the provider for a subscription, so that any of them can be paid.
	Checkout struct {
		OrderID        string    `json:"orderId" db:"provider_order_id"`
		SubscriptionID string    `json:"subscriptionId" db:"subscription_id"`
		UserID         string    `json:"userId" db:"user_id"`
		Type           Type      `json:"paymentType" db:"payment_type"`
		Amount         int64     `json:"amount" db:"amount"`
		Currency       string    `json:"currency" db:"currency"`
		CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	}

	// OrderRequest describes a checkout to open with the provider.
	OrderRequest struct {
		Type    Type
		Amount  int64 // in the currency's minor unit
		Receipt string
		Notes   map[string]string
	}

	// Order is a provider checkout handed to the client so it can collect the payment.
	Order struct {
		ID       string `json:"orderId"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		KeyID    string `json:"keyId"`
		Receipt  string `json:"receipt"`
	}

	// Proof is what the provider's checkout hands back to the client once a payment succeeds.
	Proof struct {
		OrderID   string `json:"razorpay_order_id"`
		PaymentID string `json:"razorpay_payment_id"`
		Signature string `json:"razorpay_signature"`
	}

	// Gateway is a payment provider.
	Gateway interface {
		CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
		// Verify checks a Proof against the gateway's secret. It never fails loudly: false means forged or corrupted.
		Verify(proof Proof) bool
	}
)

// Package testutil holds fixtures and fakes shared by the test suites.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
)

const GatewaySecret = "test_secret_key"

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate, translator
}

type ModuleSpec struct {
	Title  string
	IsFree bool
}

type ClassSpec struct {
	Title             string
	RegistrationFee   int64
	CourseFee         int64
	CourseFeeEnabled  bool
	IsFirstModuleFree bool
	IsFree            bool
	Unlisted          bool
	Modules           []ModuleSpec
	EndsAt            time.Time
}

// CreateLiveClass stores a class open for registrations, listed unless spec.Unlisted.
func CreateLiveClass(t *testing.T, repo liveclass.Repository, spec ClassSpec) liveclass.LiveClass {
	t.Helper()

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	end := spec.EndsAt
	if end.IsZero() {
		end = start.Add(30 * 24 * time.Hour)
	}
	title := spec.Title
	if title == "" {
		title = "Live Class"
	}
	cls := liveclass.LiveClass{
		Title:               title,
		StartsAt:            start,
		EndsAt:              end,
		RegistrationFee:     spec.RegistrationFee,
		CourseFee:           spec.CourseFee,
		CourseFeeEnabled:    spec.CourseFeeEnabled,
		RegistrationEnabled: true,
		IsFirstModuleFree:   spec.IsFirstModuleFree,
		IsFree:              spec.IsFree,
		IsActive:            !spec.Unlisted,
		CreatedAt:           start,
		UpdatedAt:           start,
	}
	for i, m := range spec.Modules {
		cls.Modules = append(cls.Modules, liveclass.Module{
			Title:    m.Title,
			Position: i + 1,
			StartsAt: start.Add(time.Duration(i) * 24 * time.Hour),
			EndsAt:   start.Add(time.Duration(i)*24*time.Hour + 2*time.Hour),
			IsFree:   m.IsFree,
		})
	}
	created, err := repo.CreateLiveClass(context.Background(), cls)
	if err != nil {
		t.Fatalf("CreateLiveClass() failed: %v", err)
	}
	return created
}

// FakeMeetings is an in-process meeting provider. Titles listed in FailCreate, and meeting ids listed in
// FailDelete, fail with a *liveclass.ProvisioningError.
type FakeMeetings struct {
	mu         sync.Mutex
	seq        int
	FailCreate map[string]bool
	FailDelete map[string]bool
	FailAll    bool
	Rooms      map[string]liveclass.MeetingRequest // live rooms by meeting id
	Deleted    []string
}

var _ liveclass.Provisioner = (*FakeMeetings)(nil)

func NewFakeMeetings() *FakeMeetings {
	return &FakeMeetings{
		FailCreate: make(map[string]bool),
		FailDelete: make(map[string]bool),
		Rooms:      make(map[string]liveclass.MeetingRequest),
	}
}

func (f *FakeMeetings) CreateMeeting(_ context.Context, req liveclass.MeetingRequest) (liveclass.MeetingCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailAll || f.FailCreate[req.Title] {
		return liveclass.MeetingCredentials{}, &liveclass.ProvisioningError{Op: "create", Err: errors.New("provider unavailable")}
	}
	f.seq++
	id := fmt.Sprintf("%d", 8000000000+f.seq)
	f.Rooms[id] = req
	return liveclass.MeetingCredentials{
		MeetingID: id,
		JoinLink:  "https://zoom.test/j/" + id,
		HostLink:  "https://zoom.test/s/" + id,
		Password:  fmt.Sprintf("pw%d", f.seq),
	}, nil
}

func (f *FakeMeetings) DeleteMeeting(_ context.Context, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailAll || f.FailDelete[meetingID] {
		return &liveclass.ProvisioningError{Op: "delete", Err: errors.New("provider unavailable")}
	}
	delete(f.Rooms, meetingID)
	f.Deleted = append(f.Deleted, meetingID)
	return nil
}

// Reset forgets every room and failure set up so far.
func (f *FakeMeetings) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailCreate = make(map[string]bool)
	f.FailDelete = make(map[string]bool)
	f.FailAll = false
	f.Rooms = make(map[string]liveclass.MeetingRequest)
	f.Deleted = nil
}

// LiveRooms returns how many rooms exist on the fake provider.
func (f *FakeMeetings) LiveRooms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Rooms)
}

// FakeGateway issues sequential orders and verifies proofs signed with GatewaySecret.
type FakeGateway struct {
	mu     sync.Mutex
	seq    int
	Orders []payment.OrderRequest
	Fail   bool
}

var _ payment.Gateway = (*FakeGateway)(nil)

func (g *FakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Fail {
		return payment.Order{}, errors.New("gateway unavailable")
	}
	g.seq++
	g.Orders = append(g.Orders, req)
	return payment.Order{
		ID:       fmt.Sprintf("order_test%04d", g.seq),
		Amount:   req.Amount,
		Currency: "INR",
		KeyID:    "rzp_test_key",
		Receipt:  req.Receipt,
	}, nil
}

func (g *FakeGateway) Verify(proof payment.Proof) bool {
	return payment.VerifySignature(proof.OrderID, proof.PaymentID, proof.Signature, GatewaySecret)
}

// Pay simulates a successful checkout of order and returns the proof the client would receive.
func Pay(order payment.Order, paymentID string) payment.Proof {
	return payment.Proof{
		OrderID:   order.ID,
		PaymentID: paymentID,
		Signature: payment.Sign(order.ID, paymentID, GatewaySecret),
	}
}

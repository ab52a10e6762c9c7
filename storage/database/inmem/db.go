// Package inmemdb is a process-local store used by tests and local development.
// Transactions are serialized and rolled back by restoring a snapshot; reads outside a transaction see uncommitted data.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	classes       map[string]liveclass.LiveClass
	subscriptions map[string]subscription.Subscription
	payments      map[string]payment.Payment
	checkouts     map[string]payment.Checkout
}

var _ core.Transactor = (*DB)(nil)

func NewDB() *DB {
	db := new(DB)
	db.reset()
	return db
}

func (db *DB) reset() {
	db.classes = make(map[string]liveclass.LiveClass)
	db.subscriptions = make(map[string]subscription.Subscription)
	db.payments = make(map[string]payment.Payment)
	db.checkouts = make(map[string]payment.Checkout)
}

// Reset drops every record.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

type snapshot struct {
	classes       map[string]liveclass.LiveClass
	subscriptions map[string]subscription.Subscription
	payments      map[string]payment.Payment
	checkouts     map[string]payment.Checkout
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := snapshot{
		classes:       make(map[string]liveclass.LiveClass, len(db.classes)),
		subscriptions: make(map[string]subscription.Subscription, len(db.subscriptions)),
		payments:      make(map[string]payment.Payment, len(db.payments)),
		checkouts:     make(map[string]payment.Checkout, len(db.checkouts)),
	}
	for k, v := range db.classes {
		snap.classes[k] = cloneClass(v)
	}
	for k, v := range db.subscriptions {
		snap.subscriptions[k] = cloneSubscription(v)
	}
	for k, v := range db.payments {
		snap.payments[k] = v
	}
	for k, v := range db.checkouts {
		snap.checkouts[k] = v
	}
	return snap
}

func (db *DB) restore(snap snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.classes = snap.classes
	db.subscriptions = snap.subscriptions
	db.payments = snap.payments
	db.checkouts = snap.checkouts
}

// InTx runs fn with a nil executor; the in-memory repositories ignore it.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	defer func() {
		if p := recover(); p != nil {
			db.restore(snap)
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		db.restore(snap)
	}
	return err
}

func cloneCreds(c *liveclass.MeetingCredentials) *liveclass.MeetingCredentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func cloneClass(cls liveclass.LiveClass) liveclass.LiveClass {
	cls.Meeting = cloneCreds(cls.Meeting)
	if cls.Modules != nil {
		mods := make([]liveclass.Module, len(cls.Modules))
		for i, m := range cls.Modules {
			m.Meeting = cloneCreds(m.Meeting)
			mods[i] = m
		}
		cls.Modules = mods
	}
	return cls
}

func cloneSubscription(sub subscription.Subscription) subscription.Subscription {
	if sub.StartDate != nil {
		t := *sub.StartDate
		sub.StartDate = &t
	}
	if sub.EndDate != nil {
		t := *sub.EndDate
		sub.EndDate = &t
	}
	if sub.NextPaymentDate != nil {
		t := *sub.NextPaymentDate
		sub.NextPaymentDate = &t
	}
	return sub
}

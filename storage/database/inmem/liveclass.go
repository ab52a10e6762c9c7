package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
)

type liveClassRepository struct {
	db *DB
}

var _ liveclass.Repository = (*liveClassRepository)(nil) // interface compliance check

func NewLiveClassRepository(db *DB) *liveClassRepository {
	return &liveClassRepository{db: db}
}

func (repo *liveClassRepository) CreateLiveClass(_ context.Context, cls liveclass.LiveClass, _ ...core.DBExecutor) (liveclass.LiveClass, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cls = cloneClass(cls)
	cls.ID = uuid.New().String()
	cls.IsOnClassroom = false
	cls.Meeting = nil
	for i := range cls.Modules {
		cls.Modules[i].ID = uuid.New().String()
		cls.Modules[i].LiveClassID = cls.ID
		cls.Modules[i].Position = i + 1
		cls.Modules[i].Meeting = nil
	}
	cls.HasModules = len(cls.Modules) > 0
	repo.db.classes[cls.ID] = cls
	return cloneClass(cls), nil
}

func (repo *liveClassRepository) GetLiveClass(_ context.Context, filter liveclass.GetFilter, _ ...core.DBExecutor) (liveclass.LiveClass, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cls, ok := repo.db.classes[filter.ID]
	if !ok {
		return liveclass.LiveClass{}, liveclass.ErrNotFound
	}
	return cloneClass(cls), nil
}

func (repo *liveClassRepository) SaveMeetings(_ context.Context, cls liveclass.LiveClass, _ ...core.DBExecutor) (liveclass.LiveClass, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.classes[cls.ID]
	if !ok {
		return liveclass.LiveClass{}, liveclass.ErrNotFound
	}
	// only save the meeting fields
	orig.IsOnClassroom = cls.IsOnClassroom
	orig.Meeting = cloneCreds(cls.Meeting)
	orig.UpdatedAt = cls.UpdatedAt
	for i := range orig.Modules {
		orig.Modules[i].Meeting = nil
		if mod, ok := cls.Module(orig.Modules[i].ID); ok {
			orig.Modules[i].Meeting = cloneCreds(mod.Meeting)
		}
	}
	repo.db.classes[cls.ID] = orig
	return cloneClass(orig), nil
}

func (repo *liveClassRepository) DeleteLiveClass(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return liveclass.ErrNotFound
	}
	delete(repo.db.classes, id)
	for sid, sub := range repo.db.subscriptions {
		if sub.LiveClassID != id {
			continue
		}
		delete(repo.db.subscriptions, sid)
		for pid, p := range repo.db.payments {
			if p.SubscriptionID == sid {
				delete(repo.db.payments, pid)
			}
		}
		for oid, c := range repo.db.checkouts {
			if c.SubscriptionID == sid {
				delete(repo.db.checkouts, oid)
			}
		}
	}
	return nil
}

package liveclass

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
)

var (
	// errors
	ErrNotFound = errors.New("live class not found")

	NowFunc = time.Now // mockable
)

type (
	GetFilter struct {
		ID        string
		ForUpdate bool // lock the class row until the transaction ends
	}

	Repository interface {
		CreateLiveClass(ctx context.Context, cls LiveClass, exec ...core.DBExecutor) (LiveClass, error)
		// GetLiveClass returns the class with its modules ordered by position.
		GetLiveClass(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (LiveClass, error)
		// SaveMeetings persists IsOnClassroom along with the class and module meeting credentials, nothing else.
		SaveMeetings(ctx context.Context, cls LiveClass, exec ...core.DBExecutor) (LiveClass, error)
		// DeleteLiveClass deletes the class with its modules, subscriptions and payments.
		DeleteLiveClass(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		meetings Provisioner
		tx       core.Transactor
		logger   core.Logger
	}
)

func NewService(repo Repository, meetings Provisioner, tx core.Transactor, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		meetings: meetings,
		tx:       tx,
		logger:   logger,
	}
}

func (svc *Service) Create(ctx context.Context, nc NewLiveClass, validate *validator.Validate) (LiveClass, error) {
	if err := nc.Validate(validate); err != nil {
		return LiveClass{}, err
	}
	cls, err := svc.repo.CreateLiveClass(ctx, nc.build(NowFunc().UTC()))
	if err != nil {
		return LiveClass{}, errors.Wrap(err, "creating live class")
	}
	return cls, nil
}

func (svc *Service) Get(ctx context.Context, id string) (LiveClass, error) {
	return svc.repo.GetLiveClass(ctx, GetFilter{ID: id})
}

// SetLive puts the class on air (live=true) or takes it off air (live=false).
//
// Going live provisions the class room first, then one room per module. A class room failure aborts with a
// *ProvisioningError and nothing is persisted; module failures are logged and those modules stay without a room.
// Going off air deletes every remote room best-effort, then clears all credentials whatever the deletions returned.
func (svc *Service) SetLive(ctx context.Context, id string, live bool) (LiveClass, error) {
	if live {
		return svc.goLive(ctx, id)
	}
	return svc.goOffAir(ctx, id)
}

func (svc *Service) goLive(ctx context.Context, id string) (LiveClass, error) {
	cls, err := svc.repo.GetLiveClass(ctx, GetFilter{ID: id})
	if err != nil {
		return LiveClass{}, errors.Wrap(err, "getting live class")
	}
	if cls.IsOnClassroom {
		return cls, nil
	}

	classCreds, err := svc.meetings.CreateMeeting(ctx, MeetingRequest{Title: cls.Title, StartsAt: cls.StartsAt, EndsAt: cls.EndsAt})
	if err != nil {
		return LiveClass{}, errors.Wrap(asProvisioningError("create", err), "provisioning class meeting")
	}
	created := []string{classCreds.MeetingID}

	moduleCreds := make(map[string]MeetingCredentials, len(cls.Modules))
	for _, mod := range cls.Modules {
		creds, err := svc.meetings.CreateMeeting(ctx, MeetingRequest{
			Title:    fmt.Sprintf("%s - %d. %s", cls.Title, mod.Position, mod.Title),
			StartsAt: mod.StartsAt,
			EndsAt:   mod.EndsAt,
		})
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping meeting for module %s of class %s: %v", mod.ID, cls.ID, err), err)
			continue
		}
		moduleCreds[mod.ID] = creds
		created = append(created, creds.MeetingID)
	}

	var saved LiveClass
	var raced bool
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		cur, err := svc.repo.GetLiveClass(ctx, GetFilter{ID: id, ForUpdate: true}, exec)
		if err != nil {
			return errors.Wrap(err, "locking live class")
		}
		if cur.IsOnClassroom {
			raced = true
			saved = cur
			return nil
		}

		cur.IsOnClassroom = true
		creds := classCreds
		cur.Meeting = &creds
		for i := range cur.Modules {
			if mc, ok := moduleCreds[cur.Modules[i].ID]; ok {
				cur.Modules[i].Meeting = &mc
			} else {
				cur.Modules[i].Meeting = nil
			}
		}
		cur.UpdatedAt = NowFunc().UTC()

		saved, err = svc.repo.SaveMeetings(ctx, cur, exec)
		return errors.Wrap(err, "saving meetings")
	})
	if err != nil || raced {
		// the rooms created above are not referenced by any committed record
		svc.teardown(ctx, created)
	}
	if err != nil {
		return LiveClass{}, err
	}
	return saved, nil
}

func (svc *Service) goOffAir(ctx context.Context, id string) (LiveClass, error) {
	cls, err := svc.repo.GetLiveClass(ctx, GetFilter{ID: id})
	if err != nil {
		return LiveClass{}, errors.Wrap(err, "getting live class")
	}
	deleted := cls.MeetingIDs()
	svc.teardown(ctx, deleted)

	var saved LiveClass
	var leftover []string
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		cur, err := svc.repo.GetLiveClass(ctx, GetFilter{ID: id, ForUpdate: true}, exec)
		if err != nil {
			return errors.Wrap(err, "locking live class")
		}
		leftover = subtract(cur.MeetingIDs(), deleted)

		cur.IsOnClassroom = false
		cur.Meeting = nil
		for i := range cur.Modules {
			cur.Modules[i].Meeting = nil
		}
		cur.UpdatedAt = NowFunc().UTC()

		saved, err = svc.repo.SaveMeetings(ctx, cur, exec)
		return errors.Wrap(err, "clearing meetings")
	})
	if err != nil {
		return LiveClass{}, err
	}
	// rooms provisioned concurrently between the teardown and the commit
	svc.teardown(ctx, leftover)
	return saved, nil
}

// Delete removes the class and everything attached to it. Remote rooms are deleted best-effort beforehand.
func (svc *Service) Delete(ctx context.Context, id string) error {
	cls, err := svc.repo.GetLiveClass(ctx, GetFilter{ID: id})
	if err != nil {
		return errors.Wrap(err, "getting live class")
	}
	svc.teardown(ctx, cls.MeetingIDs())
	return errors.Wrap(svc.repo.DeleteLiveClass(ctx, id), "deleting live class")
}

// teardown deletes remote rooms one by one. Failures are logged and never returned: the local record is
// authoritative and leaked rooms are left for out-of-band cleanup.
func (svc *Service) teardown(ctx context.Context, meetingIDs []string) {
	if len(meetingIDs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx) // a client hanging up must not leak rooms
	for _, mid := range meetingIDs {
		if err := svc.meetings.DeleteMeeting(ctx, mid); err != nil {
			svc.logger.Error(fmt.Sprintf("deleting meeting %s: %v", mid, err), err, map[string]interface{}{"meeting_id": mid})
		}
	}
}

func subtract(ids, remove []string) []string {
	if len(ids) == 0 {
		return nil
	}
	skip := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		skip[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

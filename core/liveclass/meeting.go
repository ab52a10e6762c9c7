package liveclass

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type (
	MeetingRequest struct {
		Title    string
		StartsAt time.Time
		EndsAt   time.Time
	}

	// Provisioner creates and deletes remote meeting rooms.
	// Implementations bound every call with a timeout and retry transient failures at most once.
	Provisioner interface {
		CreateMeeting(ctx context.Context, req MeetingRequest) (MeetingCredentials, error)
		DeleteMeeting(ctx context.Context, meetingID string) error
	}

	// ProvisioningError reports that the meeting provider was unreachable or refused a request.
	ProvisioningError struct {
		Op  string
		Err error
	}
)

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("meeting provider: %s: %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// IsProvisioningError reports whether the root cause of err is a *ProvisioningError.
func IsProvisioningError(err error) bool {
	_, ok := errors.Cause(err).(*ProvisioningError)
	return ok
}

func asProvisioningError(op string, err error) error {
	if IsProvisioningError(err) {
		return errors.Cause(err)
	}
	return &ProvisioningError{Op: op, Err: err}
}

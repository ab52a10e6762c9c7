package meetingsvc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
)

// consoleProvisioner hands out fake rooms and logs every call. Used when no Zoom account is configured.
type consoleProvisioner struct {
	seq    atomic.Int64
	logger core.Logger
}

var _ liveclass.Provisioner = (*consoleProvisioner)(nil)

func NewConsoleProvisioner(logger core.Logger) *consoleProvisioner {
	p := &consoleProvisioner{logger: logger}
	p.seq.Store(time.Now().Unix())
	return p
}

func (p *consoleProvisioner) CreateMeeting(_ context.Context, req liveclass.MeetingRequest) (liveclass.MeetingCredentials, error) {
	id := fmt.Sprintf("%d", p.seq.Add(1))
	p.logger.Info(fmt.Sprintf("created meeting %s for %q (%s - %s)", id, req.Title, req.StartsAt.Format(time.RFC3339), req.EndsAt.Format(time.RFC3339)))
	return liveclass.MeetingCredentials{
		MeetingID: id,
		JoinLink:  "http://localhost/meetings/" + id,
		HostLink:  "http://localhost/meetings/" + id + "/host",
		Password:  "dev-" + id[len(id)-4:],
	}, nil
}

func (p *consoleProvisioner) DeleteMeeting(_ context.Context, meetingID string) error {
	p.logger.Info(fmt.Sprintf("deleted meeting %s", meetingID))
	return nil
}

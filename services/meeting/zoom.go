// Package meetingsvc provisions the remote meeting rooms of live classes.
package meetingsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/services/metrics"
)

var retryInterval = 300 * time.Millisecond // mockable

const (
	opCreate = "create"
	opDelete = "delete"

	scheduledMeeting = 2
)

type (
	zoomClient struct {
		http            *http.Client
		baseURL         string
		hostUser        string
		timeout         time.Duration
		defaultDuration time.Duration
		logger          core.Logger
	}

	createMeetingRequest struct {
		Topic     string          `json:"topic"`
		Type      int             `json:"type"`
		StartTime string          `json:"start_time"`
		Duration  int             `json:"duration"` // minutes
		Timezone  string          `json:"timezone"`
		Settings  meetingSettings `json:"settings"`
	}

	meetingSettings struct {
		JoinBeforeHost bool `json:"join_before_host"`
		WaitingRoom    bool `json:"waiting_room"`
	}

	meetingResponse struct {
		ID       int64  `json:"id"`
		JoinURL  string `json:"join_url"`
		StartURL string `json:"start_url"`
		Password string `json:"password"`
	}

	// statusError is a non 2xx answer of the Zoom API.
	statusError struct {
		Code int
		Body string
	}
)

var _ liveclass.Provisioner = (*zoomClient)(nil)

func (e *statusError) Error() string {
	return fmt.Sprintf("status: %d - body: %s", e.Code, e.Body)
}

// NewZoomClient authenticates with a Server-to-Server OAuth app of the configured account.
func NewZoomClient(conf core.ZoomConfig, logger core.Logger) *zoomClient {
	cc := clientcredentials.Config{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		TokenURL:     conf.TokenURL,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {conf.AccountID},
		},
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	return &zoomClient{
		// the token source outlives any request context
		http:            cc.Client(context.Background()),
		baseURL:         conf.BaseURL,
		hostUser:        conf.HostUser,
		timeout:         conf.RequestTimeout,
		defaultDuration: conf.DefaultDuration,
		logger:          logger,
	}
}

func (c *zoomClient) CreateMeeting(ctx context.Context, req liveclass.MeetingRequest) (liveclass.MeetingCredentials, error) {
	duration := req.EndsAt.Sub(req.StartsAt)
	if duration <= 0 {
		duration = c.defaultDuration
	}
	payload := createMeetingRequest{
		Topic:     req.Title,
		Type:      scheduledMeeting,
		StartTime: req.StartsAt.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  int(duration.Minutes()),
		Timezone:  "UTC",
		Settings:  meetingSettings{JoinBeforeHost: true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return liveclass.MeetingCredentials{}, &liveclass.ProvisioningError{Op: opCreate, Err: err}
	}

	var res meetingResponse
	endpoint := fmt.Sprintf("%s/users/%s/meetings", c.baseURL, url.PathEscape(c.hostUser))
	err = c.do(ctx, opCreate, http.MethodPost, endpoint, body, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&res)
	})
	if err != nil {
		return liveclass.MeetingCredentials{}, err
	}
	if res.ID == 0 || res.JoinURL == "" {
		return liveclass.MeetingCredentials{}, &liveclass.ProvisioningError{Op: opCreate, Err: errors.New("incomplete meeting in response")}
	}
	return liveclass.MeetingCredentials{
		MeetingID: strconv.FormatInt(res.ID, 10),
		JoinLink:  res.JoinURL,
		HostLink:  res.StartURL,
		Password:  res.Password,
	}, nil
}

// DeleteMeeting deletes a meeting room. A room that no longer exists counts as deleted.
func (c *zoomClient) DeleteMeeting(ctx context.Context, meetingID string) error {
	endpoint := fmt.Sprintf("%s/meetings/%s", c.baseURL, url.PathEscape(meetingID))
	err := c.do(ctx, opDelete, http.MethodDelete, endpoint, nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		c.logger.Info(fmt.Sprintf("meeting %s already deleted", meetingID))
		return nil
	}
	return err
}

// do sends one request, retrying once on a transient failure. Each attempt is bounded by the client timeout.
func (c *zoomClient) do(ctx context.Context, op, method, endpoint string, body []byte, decode func(io.Reader) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.MeetingRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.MeetingRequests.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}()

	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := c.http.Do(req)
		if err != nil {
			if isTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= http.StatusMultipleChoices {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
			se := &statusError{Code: res.StatusCode, Body: string(msg)}
			if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
				return se
			}
			return backoff.Permanent(se)
		}
		if decode != nil {
			if err := decode(res.Body); err != nil {
				return backoff.Permanent(errors.Wrap(err, "decoding response"))
			}
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), 1), ctx)
	if err = backoff.Retry(attempt, b); err != nil {
		return &liveclass.ProvisioningError{Op: op, Err: err}
	}
	return nil
}

func isTransient(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

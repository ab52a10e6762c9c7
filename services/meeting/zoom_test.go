package meetingsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	logsvc "github.com/trezcool/masomo-live/services/logger"
)

type fakeZoom struct {
	*httptest.Server
	tokens   atomic.Int32
	calls    atomic.Int32
	statuses []int // answer of each API call, 201/204 once exhausted
	lastBody createMeetingRequest
	hang     bool
	release  chan struct{} // unblocks hanging handlers before the server closes
}

func newFakeZoom(t *testing.T, statuses ...int) *fakeZoom {
	t.Helper()
	fz := &fakeZoom{statuses: statuses, release: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		fz.tokens.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		assert.Equal(t, "account_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "acct", r.Form.Get("account_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	api := func(w http.ResponseWriter, r *http.Request) {
		n := int(fz.calls.Add(1))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if fz.hang {
			// the server only sees the client hang up once the body is consumed
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-r.Context().Done():
			case <-fz.release:
			}
			return
		}
		if n <= len(fz.statuses) && fz.statuses[n-1] >= 300 {
			w.WriteHeader(fz.statuses[n-1])
			_, _ = w.Write([]byte(`{"code":1,"message":"nope"}`))
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&fz.lastBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":81234567890,"join_url":"https://zoom.test/j/81234567890","start_url":"https://zoom.test/s/81234567890","password":"x1y2"}`))
	}
	mux.HandleFunc("/v2/users/me/meetings", api)
	mux.HandleFunc("/v2/meetings/", api)
	fz.Server = httptest.NewServer(mux)
	t.Cleanup(fz.Close)
	t.Cleanup(func() { close(fz.release) }) // runs before Close
	return fz
}

func (fz *fakeZoom) client(timeout time.Duration) *zoomClient {
	return NewZoomClient(core.ZoomConfig{
		AccountID:       "acct",
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		BaseURL:         fz.URL + "/v2",
		TokenURL:        fz.URL + "/oauth/token",
		HostUser:        "me",
		RequestTimeout:  timeout,
		DefaultDuration: time.Hour,
	}, logsvc.NewNopLogger())
}

func TestMain(m *testing.M) {
	retryInterval = time.Millisecond
	m.Run()
}

func TestZoomClient_CreateMeeting(t *testing.T) {
	start := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	req := liveclass.MeetingRequest{Title: "Go - 1. Basics", StartsAt: start, EndsAt: start.Add(90 * time.Minute)}

	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{name: "created", wantCalls: 1},
		{name: "retried once on 503", statuses: []int{http.StatusServiceUnavailable}, wantCalls: 2},
		{name: "retried once on 429", statuses: []int{http.StatusTooManyRequests}, wantCalls: 2},
		{name: "gives up after one retry", statuses: []int{http.StatusBadGateway, http.StatusBadGateway}, wantErr: true, wantCalls: 2},
		{name: "client error is final", statuses: []int{http.StatusBadRequest}, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fz := newFakeZoom(t, tt.statuses...)
			creds, err := fz.client(time.Second).CreateMeeting(context.Background(), req)
			assert.Equal(t, tt.wantCalls, fz.calls.Load())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, liveclass.IsProvisioningError(err))
				assert.Empty(t, creds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, liveclass.MeetingCredentials{
				MeetingID: "81234567890",
				JoinLink:  "https://zoom.test/j/81234567890",
				HostLink:  "https://zoom.test/s/81234567890",
				Password:  "x1y2",
			}, creds)
			assert.Equal(t, "Go - 1. Basics", fz.lastBody.Topic)
			assert.Equal(t, "2024-03-01T04:30:00Z", fz.lastBody.StartTime)
			assert.Equal(t, 90, fz.lastBody.Duration)
			assert.Equal(t, int32(1), fz.tokens.Load())
		})
	}
}

func TestZoomClient_Timeout(t *testing.T) {
	fz := newFakeZoom(t)
	fz.hang = true

	start := time.Now()
	_, err := fz.client(50*time.Millisecond).CreateMeeting(context.Background(), liveclass.MeetingRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, liveclass.IsProvisioningError(err))
	assert.Equal(t, int32(2), fz.calls.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestZoomClient_BadCredentials(t *testing.T) {
	fz := newFakeZoom(t)
	cfg := NewZoomClient(core.ZoomConfig{
		AccountID: "acct", ClientID: "client-id", ClientSecret: "wrong",
		BaseURL: fz.URL + "/v2", TokenURL: fz.URL + "/oauth/token", HostUser: "me", RequestTimeout: time.Second,
	}, logsvc.NewNopLogger())

	err := cfg.DeleteMeeting(context.Background(), "81234567890")
	require.Error(t, err)
	assert.True(t, liveclass.IsProvisioningError(err))
	assert.Equal(t, int32(1), fz.tokens.Load())
	assert.Zero(t, fz.calls.Load())
}

func TestZoomClient_DeleteMeeting(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		wantErr  bool
	}{
		{name: "deleted"},
		{name: "already gone", statuses: []int{http.StatusNotFound}},
		{name: "provider down", statuses: []int{http.StatusInternalServerError, http.StatusInternalServerError}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fz := newFakeZoom(t, tt.statuses...)
			err := fz.client(time.Second).DeleteMeeting(context.Background(), "81234567890")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, liveclass.IsProvisioningError(err))
				assert.True(t, strings.Contains(err.Error(), "500"))
				return
			}
			assert.NoError(t, err)
		})
	}
}

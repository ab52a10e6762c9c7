package emailsvc

import (
	"net/http"
	"net/mail"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/core"
	logsvc "github.com/trezcool/masomo-live/services/logger"
)

type approvedData struct {
	Name              string
	ClassTitle        string
	CourseFeeRequired bool
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(conf, logger)
	svc := NewConsoleServiceMock(conf, logger)

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
			Subject:      "Registration approved",
			TemplateName: "subscription_approved",
			TemplateData: approvedData{Name: "Ada", ClassTitle: "Go", CourseFeeRequired: true},
		},
		&core.EmailMessage{Subject: "nobody to send to", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@example.com"}}, TemplateName: "does_not_exist"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Hi Ada,")
	assert.Contains(t, sent[0].TextContent, `"Go" has been approved`)
	assert.Contains(t, sent[0].TextContent, "Pay the course fee")
	assert.Contains(t, sent[0].TextContent, conf.FrontendBaseURL+"/live-classes")
}

func TestSendgridService_send(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewNopLogger())
	msg := core.EmailMessage{To: []mail.Address{{Address: "ada@example.com"}}, Subject: "hi", TextContent: "hello"}

	origAPI, origInterval := sendgridAPI, retryInitialInterval
	retryInitialInterval = time.Millisecond
	defer func() { sendgridAPI, retryInitialInterval = origAPI, origInterval }()
	tests := []struct {
		name      string
		responses []int
		wantCalls int
		wantErr   bool
	}{
		{name: "accepted", responses: []int{http.StatusAccepted}, wantCalls: 1},
		{name: "retried once", responses: []int{http.StatusServiceUnavailable, http.StatusAccepted}, wantCalls: 2},
		{name: "bad request is not retried", responses: []int{http.StatusBadRequest}, wantCalls: 1, wantErr: true},
		{
			name:      "gives up",
			responses: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway},
			wantCalls: 4,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			sendgridAPI = func(req rest.Request) (*rest.Response, error) {
				assert.Equal(t, rest.Post, req.Method)
				if calls >= len(tt.responses) {
					return nil, errors.New("unexpected call")
				}
				code := tt.responses[calls]
				calls++
				return &rest.Response{StatusCode: code}, nil
			}
			err := svc.send(msg)
			assert.Equal(t, tt.wantErr, err != nil, "err: %v", err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

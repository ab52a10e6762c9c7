package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-live/fs"
)

func TestEmailMessage_Render(t *testing.T) {
	parsed, err := parseTemplates(appfs.FS, true)
	require.NoError(t, err)
	tmplMu.Lock()
	templates = parsed
	frontendBaseURL = "https://live.test"
	tmplMu.Unlock()

	type data struct {
		Name              string
		ClassTitle        string
		CourseFeeRequired bool
	}

	tests := []struct {
		name     string
		msg      EmailMessage
		wantErr  bool
		contains []string
	}{
		{
			name:     "plain body",
			msg:      EmailMessage{BodyStr: "hello"},
			contains: []string{"hello"},
		},
		{
			name: "approved with course fee",
			msg: EmailMessage{
				TemplateName: "subscription_approved",
				TemplateData: data{Name: "Ada", ClassTitle: "Go 101", CourseFeeRequired: true},
			},
			contains: []string{"Hi Ada", `"Go 101" has been approved`, "course fee", "https://live.test/live-classes"},
		},
		{
			name: "rejected",
			msg: EmailMessage{
				TemplateName: "subscription_rejected",
				TemplateData: data{ClassTitle: "Go 101"},
			},
			contains: []string{"Hi there", "was not approved"},
		},
		{name: "unknown template", msg: EmailMessage{TemplateName: "lol"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, msg.TextContent, s)
			}
		})
	}
}

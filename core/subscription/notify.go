package subscription

import (
	"net/mail"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
)

type notificationData struct {
	Name              string
	ClassTitle        string
	CourseFeeRequired bool
}

// notify emails the subscriber. Sending is asynchronous and never fails the caller.
func (svc *Service) notify(sub Subscription, subject, tmpl string, cls liveclass.LiveClass, courseFeeRequired bool) {
	if svc.mailSvc == nil || sub.UserEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: sub.UserName, Address: sub.UserEmail}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: notificationData{
			Name:              sub.UserName,
			ClassTitle:        cls.Title,
			CourseFeeRequired: courseFeeRequired,
		},
	})
}

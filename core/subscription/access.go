package subscription

import (
	"github.com/trezcool/masomo-live/core/liveclass"
)

// AccessDecision is derived from stored flags and the class state on every read. It is never persisted.
type AccessDecision struct {
	IsRegistered     bool `json:"isRegistered"`
	IsApproved       bool `json:"isApproved"`
	HasAccessToLinks bool `json:"hasAccessToLinks"`
	CanJoinClass     bool `json:"canJoinClass"`
}

// Resolve computes what the holder of sub may see of cls. sub may be nil.
func Resolve(sub *Subscription, cls liveclass.LiveClass) AccessDecision {
	var dec AccessDecision
	if sub != nil {
		dec.IsRegistered = sub.IsRegistered
		dec.IsApproved = sub.IsApproved
	}
	if !cls.CourseFeeEnabled {
		dec.HasAccessToLinks = dec.IsRegistered
	} else if sub != nil {
		dec.HasAccessToLinks = sub.HasAccessToLinks
	}
	dec.CanJoinClass = dec.HasAccessToLinks && cls.IsOnClassroom
	return dec
}

// ResolveModule is Resolve for a module-scoped subscription: joining also needs the module's own room.
func ResolveModule(sub *Subscription, cls liveclass.LiveClass, mod liveclass.Module) AccessDecision {
	dec := Resolve(sub, cls)
	dec.CanJoinClass = dec.CanJoinClass && mod.Meeting != nil
	return dec
}

type (
	MeetingDetails struct {
		Link      string `json:"link"`
		MeetingID string `json:"meetingId"`
		Password  string `json:"password"`
	}

	ModuleView struct {
		ID             string          `json:"id"`
		Title          string          `json:"title"`
		Position       int             `json:"position"`
		IsFree         bool            `json:"isFree"`
		CanJoin        bool            `json:"canJoin"`
		MeetingDetails *MeetingDetails `json:"meetingDetails,omitempty"`
	}

	// View is the per-user answer to "what can I see of this class (or module)".
	View struct {
		IsSubscribed   bool   `json:"isSubscribed"`
		SubscriptionID string `json:"subscriptionId,omitempty"`
		Status         Status `json:"status,omitempty"`
		AccessDecision
		MeetingDetails *MeetingDetails `json:"meetingDetails,omitempty"`
		Modules        []ModuleView    `json:"modules,omitempty"`
	}
)

func meetingDetails(creds *liveclass.MeetingCredentials) *MeetingDetails {
	if creds == nil {
		return nil
	}
	return &MeetingDetails{Link: creds.JoinLink, MeetingID: creds.MeetingID, Password: creds.Password}
}

// NewView builds the response for scope. Meeting details are only set when the user can join.
func NewView(sub *Subscription, cls liveclass.LiveClass, scope Scope) View {
	var view View
	if sub != nil {
		view.IsSubscribed = sub.IsSubscribed()
		view.SubscriptionID = sub.ID
		view.Status = sub.Status
	}

	if scope.IsModule() {
		mod, ok := cls.Module(scope.ModuleID)
		if !ok {
			view.AccessDecision = Resolve(sub, cls)
			view.CanJoinClass = false
			return view
		}
		view.AccessDecision = ResolveModule(sub, cls, mod)
		if view.CanJoinClass {
			view.MeetingDetails = meetingDetails(mod.Meeting)
		}
		return view
	}

	view.AccessDecision = Resolve(sub, cls)
	if view.CanJoinClass {
		view.MeetingDetails = meetingDetails(cls.Meeting)
	}
	for _, mod := range cls.Modules {
		mv := ModuleView{
			ID:       mod.ID,
			Title:    mod.Title,
			Position: mod.Position,
			IsFree:   cls.IsModuleFree(mod),
			CanJoin:  ResolveModule(sub, cls, mod).CanJoinClass,
		}
		if mv.CanJoin {
			mv.MeetingDetails = meetingDetails(mod.Meeting)
		}
		view.Modules = append(view.Modules, mv)
	}
	return view
}

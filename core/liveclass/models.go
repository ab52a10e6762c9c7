package liveclass

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-live/core"
)

type (
	// MeetingCredentials are the coordinates of a provisioned meeting room.
	MeetingCredentials struct {
		MeetingID string `json:"meetingId"`
		JoinLink  string `json:"link"`
		HostLink  string `json:"-"`
		Password  string `json:"password"`
	}

	LiveClass struct {
		ID                  string    `json:"id"`
		Title               string    `json:"title"`
		Description         string    `json:"description,omitempty"`
		StartsAt            time.Time `json:"startsAt"`
		EndsAt              time.Time `json:"endsAt"`
		RegistrationFee     int64     `json:"registrationFee"` // in the currency's minor unit
		CourseFee           int64     `json:"courseFee"`       // in the currency's minor unit
		CourseFeeEnabled    bool      `json:"courseFeeEnabled"`
		RegistrationEnabled bool      `json:"registrationEnabled"`
		HasModules          bool      `json:"hasModules"`
		IsFirstModuleFree   bool      `json:"isFirstModuleFree"`
		IsFree              bool      `json:"isFree"`
		IsActive            bool      `json:"isActive"`
		IsOnClassroom       bool      `json:"isOnClassroom"`
		CreatedAt           time.Time `json:"createdAt"`
		UpdatedAt           time.Time `json:"updatedAt"`

		// Meeting is nil unless IsOnClassroom. Never serialized as is: access is resolved per user.
		Meeting *MeetingCredentials `json:"-"`
		Modules []Module            `json:"modules,omitempty"`
	}

	Module struct {
		ID          string    `json:"id"`
		LiveClassID string    `json:"liveClassId"`
		Title       string    `json:"title"`
		Position    int       `json:"position"` // 1-based, dense
		StartsAt    time.Time `json:"startsAt"`
		EndsAt      time.Time `json:"endsAt"`
		IsFree      bool      `json:"isFree"`

		Meeting *MeetingCredentials `json:"-"`
	}

	NewLiveClass struct {
		Title               string      `json:"title" validate:"required,notblank"`
		Description         string      `json:"description"`
		StartsAt            time.Time   `json:"startsAt" validate:"required"`
		EndsAt              time.Time   `json:"endsAt" validate:"required,gtfield=StartsAt"`
		RegistrationFee     int64       `json:"registrationFee" validate:"gte=0"`
		CourseFee           int64       `json:"courseFee" validate:"gte=0"`
		CourseFeeEnabled    bool        `json:"courseFeeEnabled"`
		RegistrationEnabled bool        `json:"registrationEnabled"`
		IsFirstModuleFree   bool        `json:"isFirstModuleFree"`
		IsFree              bool        `json:"isFree"`
		IsActive            bool        `json:"isActive"`
		Modules             []NewModule `json:"modules" validate:"dive"`
	}

	NewModule struct {
		Title    string    `json:"title" validate:"required,notblank"`
		StartsAt time.Time `json:"startsAt" validate:"required"`
		EndsAt   time.Time `json:"endsAt" validate:"required,gtfield=StartsAt"`
		IsFree   bool      `json:"isFree"`
	}
)

// Module returns the module identified by id.
func (cls LiveClass) Module(id string) (Module, bool) {
	for _, m := range cls.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// IsModuleFree reports whether joining mod requires no payment at all.
func (cls LiveClass) IsModuleFree(mod Module) bool {
	return mod.IsFree || (cls.IsFirstModuleFree && mod.Position == 1)
}

// MeetingIDs lists the remote meeting ids currently recorded on the class and its modules.
func (cls LiveClass) MeetingIDs() []string {
	ids := make([]string, 0, len(cls.Modules)+1)
	if cls.Meeting != nil && cls.Meeting.MeetingID != "" {
		ids = append(ids, cls.Meeting.MeetingID)
	}
	for _, m := range cls.Modules {
		if m.Meeting != nil && m.Meeting.MeetingID != "" {
			ids = append(ids, m.Meeting.MeetingID)
		}
	}
	return ids
}

func (nc *NewLiveClass) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	for i := range nc.Modules {
		nc.Modules[i].Title = core.CleanString(nc.Modules[i].Title)
	}
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.CourseFeeEnabled && nc.CourseFee <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "courseFee", Error: "must be greater than 0 when the course fee is enabled"})
	}
	if nc.RegistrationEnabled && !nc.IsFree && len(nc.Modules) == 0 && nc.RegistrationFee <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "registrationFee", Error: "must be greater than 0 for a paid class"})
	}
	return nil
}

// build turns nc into a LiveClass with dense 1-based module positions. IDs are assigned by the Repository.
func (nc NewLiveClass) build(now time.Time) LiveClass {
	cls := LiveClass{
		Title:               nc.Title,
		Description:         nc.Description,
		StartsAt:            nc.StartsAt.UTC(),
		EndsAt:              nc.EndsAt.UTC(),
		RegistrationFee:     nc.RegistrationFee,
		CourseFee:           nc.CourseFee,
		CourseFeeEnabled:    nc.CourseFeeEnabled,
		RegistrationEnabled: nc.RegistrationEnabled,
		HasModules:          len(nc.Modules) > 0,
		IsFirstModuleFree:   nc.IsFirstModuleFree,
		IsFree:              nc.IsFree,
		IsActive:            nc.IsActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for i, nm := range nc.Modules {
		cls.Modules = append(cls.Modules, Module{
			Title:    nm.Title,
			Position: i + 1,
			StartsAt: nm.StartsAt.UTC(),
			EndsAt:   nm.EndsAt.UTC(),
			IsFree:   nm.IsFree,
		})
	}
	return cls
}

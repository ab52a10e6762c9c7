package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
)

const (
	liveClassColumns = `id, title, description, starts_at, ends_at, registration_fee, course_fee, course_fee_enabled,
		registration_enabled, has_modules, is_first_module_free, is_free, is_active, is_on_classroom,
		meeting_id, meeting_link, meeting_host_link, meeting_password, created_at, updated_at`
	moduleColumns = `id, live_class_id, title, position, starts_at, ends_at, is_free,
		meeting_id, meeting_link, meeting_host_link, meeting_password`
)

type (
	MeetingCols struct {
		MeetingID       null.String `db:"meeting_id"`
		MeetingLink     null.String `db:"meeting_link"`
		MeetingHostLink null.String `db:"meeting_host_link"`
		MeetingPassword null.String `db:"meeting_password"`
	}

	liveClassRow struct {
		ID                  string    `db:"id"`
		Title               string    `db:"title"`
		Description         string    `db:"description"`
		StartsAt            time.Time `db:"starts_at"`
		EndsAt              time.Time `db:"ends_at"`
		RegistrationFee     int64     `db:"registration_fee"`
		CourseFee           int64     `db:"course_fee"`
		CourseFeeEnabled    bool      `db:"course_fee_enabled"`
		RegistrationEnabled bool      `db:"registration_enabled"`
		HasModules          bool      `db:"has_modules"`
		IsFirstModuleFree   bool      `db:"is_first_module_free"`
		IsFree              bool      `db:"is_free"`
		IsActive            bool      `db:"is_active"`
		IsOnClassroom       bool      `db:"is_on_classroom"`
		MeetingCols
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	moduleRow struct {
		ID          string    `db:"id"`
		LiveClassID string    `db:"live_class_id"`
		Title       string    `db:"title"`
		Position    int       `db:"position"`
		StartsAt    time.Time `db:"starts_at"`
		EndsAt      time.Time `db:"ends_at"`
		IsFree      bool      `db:"is_free"`
		MeetingCols
	}
)

func toMeetingCols(creds *liveclass.MeetingCredentials) MeetingCols {
	if creds == nil {
		return MeetingCols{}
	}
	return MeetingCols{
		MeetingID:       null.StringFrom(creds.MeetingID),
		MeetingLink:     null.StringFrom(creds.JoinLink),
		MeetingHostLink: null.StringFrom(creds.HostLink),
		MeetingPassword: null.StringFrom(creds.Password),
	}
}

func (mc MeetingCols) credentials() *liveclass.MeetingCredentials {
	if !mc.MeetingID.Valid {
		return nil
	}
	return &liveclass.MeetingCredentials{
		MeetingID: mc.MeetingID.String,
		JoinLink:  mc.MeetingLink.String,
		HostLink:  mc.MeetingHostLink.String,
		Password:  mc.MeetingPassword.String,
	}
}

func toLiveClassRow(cls liveclass.LiveClass) liveClassRow {
	return liveClassRow{
		ID:                  cls.ID,
		Title:               cls.Title,
		Description:         cls.Description,
		StartsAt:            cls.StartsAt.UTC(),
		EndsAt:              cls.EndsAt.UTC(),
		RegistrationFee:     cls.RegistrationFee,
		CourseFee:           cls.CourseFee,
		CourseFeeEnabled:    cls.CourseFeeEnabled,
		RegistrationEnabled: cls.RegistrationEnabled,
		HasModules:          cls.HasModules,
		IsFirstModuleFree:   cls.IsFirstModuleFree,
		IsFree:              cls.IsFree,
		IsActive:            cls.IsActive,
		IsOnClassroom:       cls.IsOnClassroom,
		MeetingCols:         toMeetingCols(cls.Meeting),
		CreatedAt:           cls.CreatedAt.UTC(),
		UpdatedAt:           cls.UpdatedAt.UTC(),
	}
}

func (row liveClassRow) liveClass(mods []moduleRow) liveclass.LiveClass {
	cls := liveclass.LiveClass{
		ID:                  row.ID,
		Title:               row.Title,
		Description:         row.Description,
		StartsAt:            row.StartsAt.UTC(),
		EndsAt:              row.EndsAt.UTC(),
		RegistrationFee:     row.RegistrationFee,
		CourseFee:           row.CourseFee,
		CourseFeeEnabled:    row.CourseFeeEnabled,
		RegistrationEnabled: row.RegistrationEnabled,
		HasModules:          row.HasModules,
		IsFirstModuleFree:   row.IsFirstModuleFree,
		IsFree:              row.IsFree,
		IsActive:            row.IsActive,
		IsOnClassroom:       row.IsOnClassroom,
		Meeting:             row.credentials(),
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
	for _, m := range mods {
		cls.Modules = append(cls.Modules, liveclass.Module{
			ID:          m.ID,
			LiveClassID: m.LiveClassID,
			Title:       m.Title,
			Position:    m.Position,
			StartsAt:    m.StartsAt.UTC(),
			EndsAt:      m.EndsAt.UTC(),
			IsFree:      m.IsFree,
			Meeting:     m.credentials(),
		})
	}
	return cls
}

type liveClassRepository struct {
	base
}

var _ liveclass.Repository = (*liveClassRepository)(nil) // interface compliance check

func NewLiveClassRepository(db *sqlx.DB) *liveClassRepository {
	return &liveClassRepository{base: newBase(db)}
}

func (repo liveClassRepository) CreateLiveClass(ctx context.Context, cls liveclass.LiveClass, exec ...core.DBExecutor) (liveclass.LiveClass, error) {
	cls.ID = uuid.New().String()
	cls.IsOnClassroom = false
	cls.Meeting = nil
	cls.HasModules = len(cls.Modules) > 0
	mods := make([]moduleRow, 0, len(cls.Modules))
	for i, m := range cls.Modules {
		mods = append(mods, moduleRow{
			ID:          uuid.New().String(),
			LiveClassID: cls.ID,
			Title:       m.Title,
			Position:    i + 1,
			StartsAt:    m.StartsAt.UTC(),
			EndsAt:      m.EndsAt.UTC(),
			IsFree:      m.IsFree,
		})
	}
	row := toLiveClassRow(cls)

	err := repo.inTx(ctx, exec, func(ext sqlx.ExtContext) error {
		q := `INSERT INTO live_classes (` + liveClassColumns + `) VALUES (
			:id, :title, :description, :starts_at, :ends_at, :registration_fee, :course_fee, :course_fee_enabled,
			:registration_enabled, :has_modules, :is_first_module_free, :is_free, :is_active, :is_on_classroom,
			:meeting_id, :meeting_link, :meeting_host_link, :meeting_password, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, ext, q, row); err != nil {
			return errors.Wrap(err, "inserting live class")
		}
		for _, m := range mods {
			q := `INSERT INTO modules (` + moduleColumns + `) VALUES (
				:id, :live_class_id, :title, :position, :starts_at, :ends_at, :is_free,
				:meeting_id, :meeting_link, :meeting_host_link, :meeting_password)`
			if _, err := sqlx.NamedExecContext(ctx, ext, q, m); err != nil {
				return errors.Wrap(err, "inserting module")
			}
		}
		return nil
	})
	if err != nil {
		return liveclass.LiveClass{}, err
	}
	return row.liveClass(mods), nil
}

func (repo liveClassRepository) get(ctx context.Context, ext sqlx.ExtContext, filter liveclass.GetFilter) (liveclass.LiveClass, error) {
	if _, err := uuid.Parse(filter.ID); err != nil {
		return liveclass.LiveClass{}, liveclass.ErrNotFound
	}

	var row liveClassRow
	q := `SELECT ` + liveClassColumns + ` FROM live_classes WHERE id = $1` + forUpdate(filter.ForUpdate)
	if err := sqlx.GetContext(ctx, ext, &row, q, filter.ID); err != nil {
		if err == sql.ErrNoRows {
			return liveclass.LiveClass{}, liveclass.ErrNotFound
		}
		return liveclass.LiveClass{}, errors.Wrap(err, "selecting live class")
	}

	var mods []moduleRow
	q = `SELECT ` + moduleColumns + ` FROM modules WHERE live_class_id = $1 ORDER BY position` + forUpdate(filter.ForUpdate)
	if err := sqlx.SelectContext(ctx, ext, &mods, q, filter.ID); err != nil {
		return liveclass.LiveClass{}, errors.Wrap(err, "selecting modules")
	}
	return row.liveClass(mods), nil
}

func (repo liveClassRepository) GetLiveClass(ctx context.Context, filter liveclass.GetFilter, exec ...core.DBExecutor) (liveclass.LiveClass, error) {
	return repo.get(ctx, repo.getExec(exec), filter)
}

func (repo liveClassRepository) SaveMeetings(ctx context.Context, cls liveclass.LiveClass, exec ...core.DBExecutor) (liveclass.LiveClass, error) {
	var saved liveclass.LiveClass
	err := repo.inTx(ctx, exec, func(ext sqlx.ExtContext) error {
		row := toLiveClassRow(cls)
		res, err := sqlx.NamedExecContext(ctx, ext, `UPDATE live_classes SET
			is_on_classroom = :is_on_classroom, meeting_id = :meeting_id, meeting_link = :meeting_link,
			meeting_host_link = :meeting_host_link, meeting_password = :meeting_password, updated_at = :updated_at
			WHERE id = :id`, row)
		if err != nil {
			return errors.Wrap(err, "updating live class meetings")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return liveclass.ErrNotFound
		}

		for _, m := range cls.Modules {
			mr := moduleRow{ID: m.ID, LiveClassID: cls.ID, MeetingCols: toMeetingCols(m.Meeting)}
			_, err := sqlx.NamedExecContext(ctx, ext, `UPDATE modules SET
				meeting_id = :meeting_id, meeting_link = :meeting_link,
				meeting_host_link = :meeting_host_link, meeting_password = :meeting_password
				WHERE id = :id AND live_class_id = :live_class_id`, mr)
			if err != nil {
				return errors.Wrap(err, "updating module meetings")
			}
		}

		saved, err = repo.get(ctx, ext, liveclass.GetFilter{ID: cls.ID})
		return err
	})
	return saved, err
}

func (repo liveClassRepository) DeleteLiveClass(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return liveclass.ErrNotFound
	}
	// modules, subscriptions and payments go with it (ON DELETE CASCADE)
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM live_classes WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting live class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return liveclass.ErrNotFound
	}
	return nil
}

package iam

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/academiapro/backend/core"
)

// Persisted statuses. StatusExpired and StatusPending also occur as derived
// effective statuses; the persisted column is never swept when a window lapses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusExpired   = "expired"
	StatusRevoked   = "revoked"
	StatusPending   = "pending" // derived only
)

// DelegatedAccount is a grant of a permission subset to a user, optionally
// time-boxed by [StartDate, EndDate).
type DelegatedAccount struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Permissions []string  `json:"permissions"`
	StartDate   null.Time `json:"start_date"`
	EndDate     null.Time `json:"end_date"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	RevokedBy   string    `json:"revoked_by,omitempty"`
	RevokedAt   null.Time `json:"revoked_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// EffectiveStatus derives the state presented to operators at read time.
// Pure: depends only on the persisted status, the window and now.
func (a *DelegatedAccount) EffectiveStatus(now time.Time) string {
	switch a.Status {
	case StatusRevoked:
		return StatusRevoked
	case StatusSuspended:
		return StatusSuspended
	case StatusInactive:
		return StatusInactive
	case StatusExpired:
		return StatusExpired
	}
	if a.EndDate.Valid && !now.Before(a.EndDate.Time) {
		return StatusExpired
	}
	if a.StartDate.Valid && now.Before(a.StartDate.Time) {
		return StatusPending
	}
	return StatusActive
}

// HasEffectiveAccess reports whether the grant is usable at now.
func (a *DelegatedAccount) HasEffectiveAccess(now time.Time) bool {
	return a.EffectiveStatus(now) == StatusActive
}

// NewDelegatedAccount contains information needed to create a DelegatedAccount.
// Two creation modes: NewUser=true provisions a user from the inline name/email
// fields; otherwise UserID must reference an existing user.
type NewDelegatedAccount struct {
	NewUser     bool       `json:"new_user"`
	UserID      string     `json:"user_id"`
	FirstName   string     `json:"first_name"`
	MiddleName  string     `json:"middle_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email" validate:"omitempty,email"`
	Permissions []string   `json:"permissions" validate:"catalogperms"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Notes       string     `json:"notes"`
}

func (na *NewDelegatedAccount) Validate(validate *validator.Validate) error {
	na.UserID = core.CleanString(na.UserID)
	na.FirstName = core.CleanString(na.FirstName)
	na.MiddleName = core.CleanString(na.MiddleName)
	na.LastName = core.CleanString(na.LastName)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Notes = core.CleanString(na.Notes)
	return validate.Struct(na)
}

// UpdateDelegatedAccount defines what may be modified on an existing account.
// The user reference is immutable post-creation. nil fields are left unchanged.
type UpdateDelegatedAccount struct {
	Permissions []string   `json:"permissions" validate:"catalogperms"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Notes       *string    `json:"notes"`
}

// Validate checks the partial update against the account it will be merged
// into, so the window invariant holds on the merged values.
func (ua *UpdateDelegatedAccount) Validate(orig DelegatedAccount, validate *validator.Validate) error {
	if err := validate.Struct(ua); err != nil {
		return err
	}

	start, end := orig.StartDate, orig.EndDate
	if ua.StartDate != nil {
		start = null.TimeFrom(*ua.StartDate)
	}
	if ua.EndDate != nil {
		end = null.TimeFrom(*ua.EndDate)
	}
	if start.Valid && end.Valid && !start.Time.Before(end.Time) {
		return errInvalidWindow()
	}
	return nil
}

// Apply merges the set fields into acct.
func (ua *UpdateDelegatedAccount) Apply(acct *DelegatedAccount) {
	if ua.Permissions != nil {
		acct.Permissions = ua.Permissions
	}
	if ua.StartDate != nil {
		acct.StartDate = null.TimeFrom(ua.StartDate.UTC())
	}
	if ua.EndDate != nil {
		acct.EndDate = null.TimeFrom(ua.EndDate.UTC())
	}
	if ua.Notes != nil {
		acct.Notes = core.CleanString(*ua.Notes)
	}
}

// QueryFilter filters account listings. Status matches the *effective* status;
// Search does a case-insensitive match on granted permission names and notes.
type QueryFilter struct {
	Search      string    `query:"search"`
	Status      string    `query:"status"`
	UserID      string    `query:"user_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.UserID == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// InitValidators registers this package's custom validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(catalogPermsTag, catalogPermsValidation)
	core.RegisterCustomTranslation(validate, translator, catalogPermsTag, catalogPermsText)

	validate.RegisterStructValidation(newAccountStructValidation, NewDelegatedAccount{})
	validate.RegisterStructValidation(updateAccountStructValidation, UpdateDelegatedAccount{})
	core.RegisterCustomTranslation(validate, translator, userSelectionTag, userSelectionText)
	core.RegisterCustomTranslation(validate, translator, windowTag, windowText)
	core.RegisterCustomTranslation(validate, translator, noPermissionsTag, noPermissionsText)
}

package iam

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/academiapro/backend/core"
)

var (
	catalogPermsTag  = "catalogperms"
	catalogPermsText = "unknown permissions"

	noPermissionsTag  = "nopermissions"
	noPermissionsText = "at least one permission must be selected"

	userSelectionTag  = "userselection"
	userSelectionText = "an existing user must be selected"

	windowTag  = "validwindow"
	windowText = "start date must be before end date"
)

func errInvalidWindow() error {
	return core.NewValidationError(errors.New(windowText), core.FieldError{Field: "end_date", Error: windowText})
}

// Custom Validators

// catalogPermsValidation checks that all provided permissions are in the Catalog.
func catalogPermsValidation(fl validator.FieldLevel) bool {
	if perms, ok := fl.Field().Interface().([]string); ok {
		for _, p := range perms {
			if !IsValidPermission(p) {
				return false
			}
		}
		return true
	}
	return false
}

// newAccountStructValidation does struct level validation on NewDelegatedAccount:
// permission set non-empty, identity fields per creation mode, window ordering.
func newAccountStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewDelegatedAccount)
	if !ok {
		return
	}

	if len(na.Permissions) == 0 {
		sl.ReportError(na.Permissions, "permissions", "Permissions", noPermissionsTag, "")
	}

	if na.NewUser {
		if na.FirstName == "" {
			sl.ReportError(na.FirstName, "first_name", "FirstName", "required", "")
		}
		if na.LastName == "" {
			sl.ReportError(na.LastName, "last_name", "LastName", "required", "")
		}
		if na.Email == "" {
			sl.ReportError(na.Email, "email", "Email", "required", "")
		}
	} else if na.UserID == "" {
		sl.ReportError(na.UserID, "user_id", "UserID", userSelectionTag, "")
	}

	if na.StartDate != nil && na.EndDate != nil && !na.StartDate.Before(*na.EndDate) {
		sl.ReportError(na.EndDate, "end_date", "EndDate", windowTag, "")
	}
}

// updateAccountStructValidation rejects an explicitly empty permission set.
// nil means "leave unchanged"; the window is checked against the merged record
// in UpdateDelegatedAccount.Validate.
func updateAccountStructValidation(sl validator.StructLevel) {
	if ua, ok := sl.Current().Interface().(UpdateDelegatedAccount); ok {
		if ua.Permissions != nil && len(ua.Permissions) == 0 {
			sl.ReportError(ua.Permissions, "permissions", "Permissions", noPermissionsTag, "")
		}
	}
}

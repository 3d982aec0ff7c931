package iam

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiapro/backend/core"
	"github.com/academiapro/backend/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("delegated account not found")
	ErrAccountRevoked = core.NewConflictError("delegated account has been revoked")
	ErrAlreadyRevoked = core.NewConflictError("delegated account is already revoked")
)

type (
	Repository interface {
		CreateAccount(ctx context.Context, acct DelegatedAccount, exec ...core.DBExecutor) (DelegatedAccount, error)
		GetAccountByID(ctx context.Context, id string, exec ...core.DBExecutor) (DelegatedAccount, error)
		// QueryAccounts applies AND operation on available QueryFilter fields,
		// except Status which is derived and applied by the Service.
		// QueryFilter.Search does a case-insensitive match on granted permission names or Notes.
		QueryAccounts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]DelegatedAccount, error)
		UpdateAccount(ctx context.Context, acct DelegatedAccount, exec ...core.DBExecutor) (DelegatedAccount, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, na NewDelegatedAccount, createdBy string) (DelegatedAccount, error)
		GetByID(ctx context.Context, id string) (DelegatedAccount, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]DelegatedAccount, error)
		Update(ctx context.Context, id string, ua UpdateDelegatedAccount) (DelegatedAccount, error)
		Revoke(ctx context.Context, id, revokedBy string) (DelegatedAccount, error)
	}

	Service struct {
		db     core.DB
		repo   Repository
		usrSvc user.ServiceInterface
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.ServiceInterface) *Service {
	return &Service{db: db, repo: repo, usrSvc: usrSvc}
}

// Create persists a new DelegatedAccount, provisioning the grantee through the
// user directory first when the request is in new-user mode. The request is
// assumed validated; no write happens on a failed user lookup.
func (svc *Service) Create(ctx context.Context, na NewDelegatedAccount, createdBy string) (DelegatedAccount, error) {
	userID := na.UserID
	if na.NewUser {
		if err := svc.usrSvc.CheckEmailUniqueness(na.Email); err != nil {
			return DelegatedAccount{}, err
		}
		usr, err := svc.usrSvc.Create(ctx, user.NewUser{
			FirstName:  na.FirstName,
			MiddleName: na.MiddleName,
			LastName:   na.LastName,
			Email:      na.Email,
		})
		if err != nil {
			return DelegatedAccount{}, errors.Wrap(err, "provisioning user")
		}
		userID = usr.ID
	} else {
		if _, err := svc.usrSvc.GetByID(ctx, userID); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return DelegatedAccount{}, core.NewValidationError(err, core.FieldError{Field: "user_id", Error: user.ErrNotFound.Error()})
			}
			return DelegatedAccount{}, errors.Wrap(err, "finding user by ID")
		}
	}

	now := time.Now().UTC()
	acct := DelegatedAccount{
		UserID:      userID,
		Permissions: na.Permissions,
		Status:      StatusActive,
		Notes:       na.Notes,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if na.StartDate != nil {
		acct.StartDate = null.TimeFrom(na.StartDate.UTC())
	}
	if na.EndDate != nil {
		acct.EndDate = null.TimeFrom(na.EndDate.UTC())
	}
	return svc.repo.CreateAccount(ctx, acct)
}

func (svc *Service) GetByID(ctx context.Context, id string) (DelegatedAccount, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

// Query lists accounts. The Status filter matches the effective status derived
// at call time, so lapsed windows read as "expired" without any sweep job.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]DelegatedAccount, error) {
	var status string
	if filter != nil {
		filter.Clean()
		status = filter.Status
	}

	accts, err := svc.repo.QueryAccounts(ctx, filter, ordering)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return accts, nil
	}

	now := time.Now().UTC()
	matched := make([]DelegatedAccount, 0, len(accts))
	for _, acct := range accts {
		if acct.EffectiveStatus(now) == status {
			matched = append(matched, acct)
		}
	}
	return matched, nil
}

// Update merges the partial update into the current record and persists it.
// The status check and the write happen inside one transaction so a concurrent
// revoke cannot be overwritten.
func (svc *Service) Update(ctx context.Context, id string, ua UpdateDelegatedAccount) (DelegatedAccount, error) {
	tx, err := svc.begin(ctx)
	if err != nil {
		return DelegatedAccount{}, errors.Wrap(err, "beginning transaction")
	}
	defer rollback(tx)

	acct, err := svc.repo.GetAccountByID(ctx, id, execs(tx)...)
	if err != nil {
		return DelegatedAccount{}, err
	}
	if acct.Status == StatusRevoked {
		return DelegatedAccount{}, ErrAccountRevoked
	}

	ua.Apply(&acct)
	if acct.StartDate.Valid && acct.EndDate.Valid && !acct.StartDate.Time.Before(acct.EndDate.Time) {
		return DelegatedAccount{}, errInvalidWindow()
	}
	acct.UpdatedAt = time.Now().UTC()

	acct, err = svc.repo.UpdateAccount(ctx, acct, execs(tx)...)
	if err != nil {
		return DelegatedAccount{}, err
	}
	return acct, commit(tx)
}

// Revoke permanently disables the account. One-way; there is no un-revoke.
func (svc *Service) Revoke(ctx context.Context, id, revokedBy string) (DelegatedAccount, error) {
	tx, err := svc.begin(ctx)
	if err != nil {
		return DelegatedAccount{}, errors.Wrap(err, "beginning transaction")
	}
	defer rollback(tx)

	acct, err := svc.repo.GetAccountByID(ctx, id, execs(tx)...)
	if err != nil {
		return DelegatedAccount{}, err
	}
	if acct.Status == StatusRevoked {
		return DelegatedAccount{}, ErrAlreadyRevoked
	}

	now := time.Now().UTC()
	acct.Status = StatusRevoked
	acct.RevokedBy = revokedBy
	acct.RevokedAt = null.TimeFrom(now)
	acct.UpdatedAt = now

	acct, err = svc.repo.UpdateAccount(ctx, acct, execs(tx)...)
	if err != nil {
		return DelegatedAccount{}, err
	}
	return acct, commit(tx)
}

// begin starts a transaction when the service is DB-backed; repo-only setups
// (in-memory) run without one.
func (svc *Service) begin(ctx context.Context) (*sqlx.Tx, error) {
	if svc.db == nil {
		return nil, nil
	}
	return svc.db.BeginTxx(ctx, nil)
}

func execs(tx *sqlx.Tx) []core.DBExecutor {
	if tx == nil {
		return nil
	}
	return []core.DBExecutor{tx}
}

func commit(tx *sqlx.Tx) error {
	if tx == nil {
		return nil
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func rollback(tx *sqlx.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

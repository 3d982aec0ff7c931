package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academiapro/backend/core"
	"github.com/academiapro/backend/core/iam"
)

type dbAccount struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Permissions pq.StringArray `db:"permissions"`
	StartDate   null.Time      `db:"start_date"`
	EndDate     null.Time      `db:"end_date"`
	Status      null.String    `db:"status"`
	Notes       null.String    `db:"notes"`
	CreatedBy   null.String    `db:"created_by"`
	RevokedBy   null.String    `db:"revoked_by"`
	RevokedAt   null.Time      `db:"revoked_at"`
	CreatedAt   null.Time      `db:"created_at"`
	UpdatedAt   null.Time      `db:"updated_at"`
}

type accountRepository struct {
	exec core.DBExecutor
}

var _ iam.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(exec core.DBExecutor) *accountRepository {
	return &accountRepository{exec: exec}
}

func (repo accountRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo accountRepository) pack(acct iam.DelegatedAccount) dbAccount {
	return dbAccount{
		ID:          acct.ID,
		UserID:      acct.UserID,
		Permissions: acct.Permissions,
		StartDate:   acct.StartDate,
		EndDate:     acct.EndDate,
		Status:      null.NewString(acct.Status, acct.Status != ""),
		Notes:       null.NewString(acct.Notes, acct.Notes != ""),
		CreatedBy:   null.NewString(acct.CreatedBy, acct.CreatedBy != ""),
		RevokedBy:   null.NewString(acct.RevokedBy, acct.RevokedBy != ""),
		RevokedAt:   acct.RevokedAt,
		CreatedAt:   null.NewTime(acct.CreatedAt.UTC(), !acct.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(acct.UpdatedAt.UTC(), !acct.UpdatedAt.IsZero()),
	}
}

func (repo accountRepository) unpack(a dbAccount) iam.DelegatedAccount {
	return iam.DelegatedAccount{
		ID:          a.ID,
		UserID:      a.UserID,
		Permissions: a.Permissions,
		StartDate:   a.StartDate,
		EndDate:     a.EndDate,
		Status:      a.Status.String,
		Notes:       a.Notes.String,
		CreatedBy:   a.CreatedBy.String,
		RevokedBy:   a.RevokedBy.String,
		RevokedAt:   a.RevokedAt,
		CreatedAt:   a.CreatedAt.Time,
		UpdatedAt:   a.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to iam.ErrNotFound
func (repo accountRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return iam.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo accountRepository) CreateAccount(ctx context.Context, acct iam.DelegatedAccount, exec ...core.DBExecutor) (iam.DelegatedAccount, error) {
	acct.ID = uuid.New().String()
	a := repo.pack(acct)
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO delegated_account (id, user_id, permissions, start_date, end_date, status, notes, created_by, revoked_by, revoked_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.UserID, a.Permissions, a.StartDate, a.EndDate, a.Status, a.Notes, a.CreatedBy, a.RevokedBy, a.RevokedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return iam.DelegatedAccount{}, errors.Wrap(err, "inserting delegated account")
	}
	return repo.unpack(a), nil
}

func (repo accountRepository) GetAccountByID(ctx context.Context, id string, exec ...core.DBExecutor) (iam.DelegatedAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return iam.DelegatedAccount{}, iam.ErrNotFound
	}

	var a dbAccount
	if err := repo.getExec(exec).GetContext(ctx, &a, "SELECT * FROM delegated_account WHERE id = $1", id); err != nil {
		return iam.DelegatedAccount{}, repo.trapNoRowsErr(err, "finding delegated account by ID")
	}
	return repo.unpack(a), nil
}

func (repo accountRepository) QueryAccounts(ctx context.Context, filter *iam.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]iam.DelegatedAccount, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		// accounts with any granted permission or notes matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, fmt.Sprintf(
				"(EXISTS (SELECT 1 FROM UNNEST(permissions) perm WHERE perm ILIKE %[1]s) OR notes ILIKE %[1]s)", arg(val)))
		}
		if filter.UserID != "" {
			conds = append(conds, "user_id = "+arg(filter.UserID))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	query := "SELECT * FROM delegated_account"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderBy(ordering, "created_at DESC")

	var rows []dbAccount
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying delegated accounts")
	}

	accts := make([]iam.DelegatedAccount, 0, len(rows))
	for _, a := range rows {
		accts = append(accts, repo.unpack(a))
	}
	return accts, nil
}

func (repo accountRepository) UpdateAccount(ctx context.Context, acct iam.DelegatedAccount, exec ...core.DBExecutor) (iam.DelegatedAccount, error) {
	a := repo.pack(acct)
	_, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE delegated_account
		 SET permissions = $2, start_date = $3, end_date = $4, status = $5, notes = $6,
		     revoked_by = $7, revoked_at = $8, updated_at = $9
		 WHERE id = $1`,
		a.ID, a.Permissions, a.StartDate, a.EndDate, a.Status, a.Notes, a.RevokedBy, a.RevokedAt, a.UpdatedAt,
	)
	if err != nil {
		return iam.DelegatedAccount{}, errors.Wrap(err, "updating delegated account")
	}
	return repo.unpack(a), nil
}

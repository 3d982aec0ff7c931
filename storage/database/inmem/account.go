package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/academiapro/backend/core"
	"github.com/academiapro/backend/core/iam"
)

type accountRepository struct {
	db *accountTable
}

var _ iam.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) query() []iam.DelegatedAccount {
	accts := make([]iam.DelegatedAccount, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		accts = append(accts, *a)
	}
	return accts
}

func (repo *accountRepository) CreateAccount(_ context.Context, acct iam.DelegatedAccount, _ ...core.DBExecutor) (iam.DelegatedAccount, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	acct.ID = uuid.New().String()
	repo.db.table[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id string, _ ...core.DBExecutor) (iam.DelegatedAccount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acct, ok := repo.db.table[id]; ok {
		return *acct, nil
	}
	return iam.DelegatedAccount{}, iam.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter *iam.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]iam.DelegatedAccount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accts := repo.query()
	if filter == nil || filter.IsEmpty() {
		return accts, nil
	}

	// accounts with search keyword matching a granted permission name or notes ?
	if filter.Search != "" {
		var filtered []iam.DelegatedAccount
		search := strings.ToLower(filter.Search)
		for _, a := range accts {
			if strings.Contains(strings.ToLower(a.Notes), search) {
				filtered = append(filtered, a)
				continue
			}
			for _, p := range a.Permissions {
				if strings.Contains(strings.ToLower(p), search) {
					filtered = append(filtered, a)
					break
				}
			}
		}
		accts = filtered
	}
	if accts != nil && filter.UserID != "" {
		var filtered []iam.DelegatedAccount
		for _, a := range accts {
			if a.UserID == filter.UserID {
				filtered = append(filtered, a)
			}
		}
		accts = filtered
	}
	if accts != nil && !filter.CreatedFrom.IsZero() {
		var filtered []iam.DelegatedAccount
		timeUTC := filter.CreatedFrom.UTC()
		for _, a := range accts {
			if !a.CreatedAt.Before(timeUTC) {
				filtered = append(filtered, a)
			}
		}
		accts = filtered
	}
	if accts != nil && !filter.CreatedTo.IsZero() {
		var filtered []iam.DelegatedAccount
		timeUTC := filter.CreatedTo.UTC()
		for _, a := range accts {
			if !a.CreatedAt.After(timeUTC) {
				filtered = append(filtered, a)
			}
		}
		accts = filtered
	}

	return accts, nil
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acct iam.DelegatedAccount, _ ...core.DBExecutor) (iam.DelegatedAccount, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[acct.ID]; !ok {
		return iam.DelegatedAccount{}, iam.ErrNotFound
	}
	repo.db.table[acct.ID] = &acct
	return acct, nil
}

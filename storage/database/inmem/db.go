package inmemdb

import (
	"sync"

	"github.com/academiapro/backend/core/iam"
	"github.com/academiapro/backend/core/user"
)

// DB is a mutex-guarded in-memory store, for local dev and tests.
type (
	DB struct {
		user    *userTable
		account *accountTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	accountTable struct {
		sync.RWMutex
		table map[string]*iam.DelegatedAccount
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		account: &accountTable{table: make(map[string]*iam.DelegatedAccount)},
	}
	return db, nil
}

// Reset drops all stored records. Meant for tests.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.account.Lock()
	db.account.table = make(map[string]*iam.DelegatedAccount)
	db.account.Unlock()
}

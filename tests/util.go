package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/academiapro/backend/core/iam"
	"github.com/academiapro/backend/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateAccount(
	t *testing.T,
	repo iam.Repository,
	userID string,
	perms []string,
	start, end *time.Time,
	createdBy string,
	createdAt ...time.Time,
) iam.DelegatedAccount {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acct := iam.DelegatedAccount{
		UserID:      userID,
		Permissions: perms,
		StartDate:   null.TimeFromPtr(start),
		EndDate:     null.TimeFromPtr(end),
		Status:      iam.StatusActive,
		CreatedBy:   createdBy,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

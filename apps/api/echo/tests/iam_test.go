package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/academiapro/backend/core/iam"
	"github.com/academiapro/backend/core/user"
	testutil "github.com/academiapro/backend/tests"
)

type acctResp struct {
	iam.DelegatedAccount
	EffectiveStatus string `json:"effective_status"`
}

func resp(acct iam.DelegatedAccount) acctResp {
	return acctResp{acct, acct.EffectiveStatus(time.Now().UTC())}
}

func Test_iamApi_permissionsQuery(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "Moe", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	adminToken := getToken(t, admin)

	grades := []iam.Permission{
		{Name: "grades:read", Description: "View grades and report cards"},
		{Name: "grades:record", Description: "Record and amend grades"},
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/permissions", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Super admin required", path: "/v1/permissions", token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "Get all", path: "/v1/permissions", token: adminToken, wantData: marchallObj(t, iam.SearchPermissions(""))},
		{name: "search=grades", path: "/v1/permissions?search=grades", token: adminToken, wantData: marchallObj(t, grades)},
		{name: "search matches description", path: "/v1/permissions?search=" + url.QueryEscape("report cards"), token: adminToken, wantData: marchallObj(t, grades[:1])},
		{name: "search (unknown)", path: "/v1/permissions?search=lol", token: adminToken, wantData: marchallObj(t, []iam.Permission{})},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_iamApi_accountCreate(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	grantee := testutil.CreateUser(t, usrRepo, "Jane", "Poe", "jane@test.cd", "", nil, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "Moe", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	adminToken := getToken(t, admin)

	now := time.Now().UTC()
	body := func(na iam.NewDelegatedAccount) []byte { return marchallObj(t, na) }

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Super admin required", token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "Empty permissions rejected",
			body:     body(iam.NewDelegatedAccount{UserID: grantee.ID, Permissions: []string{}}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"permissions": "at least one permission must be selected"}),
		},
		{
			name:     "Unknown permission rejected",
			body:     body(iam.NewDelegatedAccount{UserID: grantee.ID, Permissions: []string{"lol:wut"}}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"permissions": "unknown permissions"}),
		},
		{
			name:     "Existing user required",
			body:     body(iam.NewDelegatedAccount{Permissions: []string{"grades:read"}}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"user_id": "an existing user must be selected"}),
		},
		{
			name:     "Unknown user rejected",
			body:     body(iam.NewDelegatedAccount{UserID: "b770476c-dd09-4a2b-8m6y-b40dqf9l1q88", Permissions: []string{"grades:read"}}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"user_id": "user not found"}),
		},
		{
			name:     "New-user mode requires identity",
			body:     body(iam.NewDelegatedAccount{NewUser: true, Permissions: []string{"grades:read"}}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"first_name": "this field is required",
				"last_name":  "this field is required",
				"email":      "this field is required",
			}),
		},
		{
			name: "New-user mode rejects taken email",
			body: body(iam.NewDelegatedAccount{
				NewUser:     true,
				FirstName:   "Jane",
				LastName:    "Doe",
				Email:       grantee.Email,
				Permissions: []string{"grades:read"},
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "Start must precede end",
			body: body(iam.NewDelegatedAccount{
				UserID:      grantee.ID,
				Permissions: []string{"grades:read"},
				StartDate:   &now,
				EndDate:     &now,
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_date": "start date must be before end date"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/delegated-accounts"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Created for existing user", func(t *testing.T) {
		data := body(iam.NewDelegatedAccount{
			UserID:      grantee.ID,
			Permissions: []string{"grades:read", "attendance:read"},
			Notes:       "exam season cover",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts", adminToken, data)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var got acctResp
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if got.ID == "" {
			t.Error("no ID assigned")
		}
		if got.UserID != grantee.ID {
			t.Errorf("user_id = %v, want %v", got.UserID, grantee.ID)
		}
		if got.CreatedBy != admin.ID {
			t.Errorf("created_by = %v, want %v", got.CreatedBy, admin.ID)
		}
		if got.EffectiveStatus != iam.StatusActive {
			t.Errorf("effective_status = %v, want %v", got.EffectiveStatus, iam.StatusActive)
		}
	})

	t.Run("Created with provisioned user", func(t *testing.T) {
		data := body(iam.NewDelegatedAccount{
			NewUser:     true,
			FirstName:   "John",
			LastName:    "Moe",
			Email:       "john@test.cd",
			Permissions: []string{"fees:read"},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts", adminToken, data)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var got acctResp
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}

		usr, err := usrRepo.GetUser(req.Context(), user.GetFilter{Email: "john@test.cd"})
		if err != nil {
			t.Fatalf("GetUser(): %v", err)
		}
		if got.UserID != usr.ID {
			t.Errorf("user_id = %v, want %v", got.UserID, usr.ID)
		}
	})
}

func Test_iamApi_accountQuery(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "Poe", "jane@test.cd", "", nil, true)
	john := testutil.CreateUser(t, usrRepo, "John", "Moe", "john@test.cd", "", nil, true)
	adminToken := getToken(t, admin)

	now := time.Now().UTC()
	lapsedEnd := now.Add(-time.Hour)
	futureStart := now.Add(time.Hour)

	active := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)
	lapsed := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"fees:read", "fees:manage"}, nil, &lapsedEnd, admin.ID)
	pending := testutil.CreateAccount(t, acctRepo, john.ID, []string{"exams:manage"}, &futureStart, nil, admin.ID)

	empty := marchallList(t, []interface{}{}...)
	tests := []httpTest{
		{name: "Auth required", path: "/v1/delegated-accounts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Super admin required", path: "/v1/delegated-accounts", token: getToken(t, jane),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/v1/delegated-accounts", token: adminToken,
			wantData: marchallList(t, resp(active), resp(lapsed), resp(pending)),
		},
		// filtering
		{
			name: "status=active", path: "/v1/delegated-accounts?status=active", token: adminToken,
			wantData: marchallList(t, resp(active)),
		},
		{
			name: "status=expired matches lapsed window", path: "/v1/delegated-accounts?status=expired", token: adminToken,
			wantData: marchallList(t, resp(lapsed)),
		},
		{
			name: "status=pending", path: "/v1/delegated-accounts?status=pending", token: adminToken,
			wantData: marchallList(t, resp(pending)),
		},
		{name: "status=revoked", path: "/v1/delegated-accounts?status=revoked", token: adminToken, wantData: empty},
		{
			name: "search on permission name", path: "/v1/delegated-accounts?search=fees", token: adminToken,
			wantData: marchallList(t, resp(lapsed)),
		},
		{name: "search (unknown)", path: "/v1/delegated-accounts?search=lol", token: adminToken, wantData: empty},
		{
			name: "user_id", path: "/v1/delegated-accounts?user_id=" + john.ID, token: adminToken,
			wantData: marchallList(t, resp(pending)),
		},
		{
			name: "user_id & status combo", path: "/v1/delegated-accounts?user_id=" + jane.ID + "&status=expired", token: adminToken,
			wantData: marchallList(t, resp(lapsed)),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_iamApi_accountRetrieve(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "Poe", "jane@test.cd", "", nil, true)
	acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/delegated-accounts/" + acct.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Not found", path: "/v1/delegated-accounts/lol", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "Found", path: "/v1/delegated-accounts/" + acct.ID, token: adminToken, wantData: marchallObj(t, resp(acct))},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_iamApi_accountUpdate(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "Poe", "jane@test.cd", "", nil, true)
	adminToken := getToken(t, admin)

	t.Run("Replaces permission set", func(t *testing.T) {
		acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)

		data := marchallObj(t, iam.UpdateDelegatedAccount{Permissions: []string{"fees:read", "fees:manage"}})
		req, rec := newAuthRequest(http.MethodPatch, "/v1/delegated-accounts/"+acct.ID, adminToken, data)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var got acctResp
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(got.Permissions) != 2 || got.Permissions[0] != "fees:read" {
			t.Errorf("permissions = %v, want replacement set", got.Permissions)
		}
	})

	t.Run("Explicitly empty permissions rejected", func(t *testing.T) {
		acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)

		req, rec := newAuthRequest(http.MethodPatch, "/v1/delegated-accounts/"+acct.ID, adminToken, []byte(`{"permissions": []}`))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"permissions": "at least one permission must be selected"}),
		}, rec)
	})

	t.Run("Merged window enforced", func(t *testing.T) {
		start := time.Now().UTC().Add(time.Hour)
		acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, &start, nil, admin.ID)

		bad := start.Add(-time.Minute)
		data := marchallObj(t, iam.UpdateDelegatedAccount{EndDate: &bad})
		req, rec := newAuthRequest(http.MethodPatch, "/v1/delegated-accounts/"+acct.ID, adminToken, data)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_date": "start date must be before end date"}),
		}, rec)
	})

	t.Run("Revoked account not updatable", func(t *testing.T) {
		acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts/"+acct.ID+"/revoke", adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("revoke code = %v; body %s", rec.Code, rec.Body.String())
		}

		data := marchallObj(t, iam.UpdateDelegatedAccount{Permissions: []string{"fees:read"}})
		req, rec = newAuthRequest(http.MethodPatch, "/v1/delegated-accounts/"+acct.ID, adminToken, data)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "delegated account has been revoked"}),
		}, rec)
	})

	t.Run("Not found", func(t *testing.T) {
		data := marchallObj(t, iam.UpdateDelegatedAccount{})
		req, rec := newAuthRequest(http.MethodPatch, "/v1/delegated-accounts/lol", adminToken, data)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		}, rec)
	})
}

func Test_iamApi_accountRevoke(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Super", "Admin", "admin@test.cd", "", []string{user.RoleSuperAdmin}, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "Poe", "jane@test.cd", "", nil, true)
	acct := testutil.CreateAccount(t, acctRepo, jane.ID, []string{"grades:read"}, nil, nil, admin.ID)
	adminToken := getToken(t, admin)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/delegated-accounts/"+acct.ID+"/revoke")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("Super admin required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts/"+acct.ID+"/revoke", getToken(t, jane))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("Revoked", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts/"+acct.ID+"/revoke", adminToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var got acctResp
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if got.Status != iam.StatusRevoked || got.EffectiveStatus != iam.StatusRevoked {
			t.Errorf("status = %v/%v, want revoked", got.Status, got.EffectiveStatus)
		}
		if got.RevokedBy != admin.ID {
			t.Errorf("revoked_by = %v, want %v", got.RevokedBy, admin.ID)
		}
		if !got.RevokedAt.Valid {
			t.Error("revoked_at not set")
		}
	})

	t.Run("Revocation is terminal", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts/"+acct.ID+"/revoke", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "delegated account is already revoked"}),
		}, rec)
	})

	t.Run("Not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/delegated-accounts/lol/revoke", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})
}

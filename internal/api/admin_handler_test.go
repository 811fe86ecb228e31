package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/database"
	"cvbuilder/internal/document"
	"cvbuilder/internal/testutil"
)

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "plain@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	for _, path := range []string{"/v1/admin/users", "/v1/admin/stats", "/v1/admin/cover-letters"} {
		w := srv.do(t, http.MethodGet, path, token, nil)
		expectStatus(t, w, http.StatusForbidden)
	}
}

func TestAdminListUsersFilters(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	testutil.CreateUser(t, srv.db, "alice@example.com", database.RoleUser)
	testutil.CreateUser(t, srv.db, "bob@example.com", database.RoleUser)
	token := srv.tokenFor(t, admin.ID, admin.Role)

	w := srv.do(t, http.MethodGet, "/v1/admin/users?search=ALICE", token, nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["total"] != float64(1) {
		t.Fatalf("expected one match, got %v", body)
	}

	w = srv.do(t, http.MethodGet, "/v1/admin/users?role=user&limit=1&page=2", token, nil)
	expectStatus(t, w, http.StatusOK)
	body = decodeBody(t, w)
	if body["total"] != float64(2) || body["page"] != float64(2) || len(body["users"].([]any)) != 1 {
		t.Fatalf("unexpected page %v", body)
	}

	// 通配符按字面匹配。
	for _, search := range []string{"%25", "_", "a_i"} {
		w = srv.do(t, http.MethodGet, "/v1/admin/users?search="+search, token, nil)
		expectStatus(t, w, http.StatusOK)
		if got := decodeBody(t, w)["total"]; got != float64(0) {
			t.Fatalf("search %q matched %v users", search, got)
		}
	}

	w = srv.do(t, http.MethodGet, "/v1/admin/users?status=banned", token, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	token := srv.tokenFor(t, admin.ID, admin.Role)
	self := fmt.Sprintf("/v1/admin/users/%d", admin.ID)

	w := srv.do(t, http.MethodPatch, self+"/role", token, map[string]string{"role": database.RoleUser})
	expectStatus(t, w, http.StatusForbidden)
	w = srv.do(t, http.MethodPatch, self+"/status", token, map[string]string{"status": database.StatusSuspended})
	expectStatus(t, w, http.StatusForbidden)
	w = srv.do(t, http.MethodDelete, self, token, nil)
	expectStatus(t, w, http.StatusForbidden)
}

func TestAdminUpdatesOtherUsers(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	target := testutil.CreateUser(t, srv.db, "target@example.com", database.RoleUser)
	token := srv.tokenFor(t, admin.ID, admin.Role)
	path := fmt.Sprintf("/v1/admin/users/%d", target.ID)

	w := srv.do(t, http.MethodPatch, path+"/status", token, map[string]string{"status": database.StatusSuspended})
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["user"].(map[string]any)["status"]; got != database.StatusSuspended {
		t.Fatalf("unexpected status %v", got)
	}

	w = srv.do(t, http.MethodPatch, path+"/role", token, map[string]string{"role": "owner"})
	expectStatus(t, w, http.StatusBadRequest)

	w = srv.do(t, http.MethodPost, path+"/reset-password", token, map[string]string{"password": "brand-new-pass"})
	expectStatus(t, w, http.StatusOK)

	var reloaded database.User
	if err := srv.db.First(&reloaded, target.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != database.StatusSuspended || reloaded.PasswordHash == "x" {
		t.Fatalf("unexpected user after update %+v", reloaded)
	}

	w = srv.do(t, http.MethodPatch, "/v1/admin/users/9999/status", token, map[string]string{"status": database.StatusActive})
	expectStatus(t, w, http.StatusNotFound)
}

func TestAdminDeleteUserRemovesDocumentsKeepsPayments(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	target := testutil.CreateUser(t, srv.db, "gone@example.com", database.RoleUser)
	ctx := context.Background()

	if _, _, err := srv.cvs.Save(ctx, target.ID, document.SaveInput{}); err != nil {
		t.Fatalf("seed cv: %v", err)
	}
	if _, _, err := srv.letters.Save(ctx, target.ID, document.SaveInput{}); err != nil {
		t.Fatalf("seed letter: %v", err)
	}
	activate(t, srv, target.ID, "ref-gone", database.TypeAll)

	w := srv.do(t, http.MethodDelete, fmt.Sprintf("/v1/admin/users/%d", target.ID), srv.tokenFor(t, admin.ID, admin.Role), nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["deletedCVs"] != float64(1) || body["deletedCoverLetters"] != float64(1) {
		t.Fatalf("unexpected delete summary %v", body)
	}

	var users, cvs, payments int64
	srv.db.Unscoped().Model(&database.User{}).Where("id = ?", target.ID).Count(&users)
	srv.db.Unscoped().Model(&database.CV{}).Where("user_id = ?", target.ID).Count(&cvs)
	srv.db.Model(&database.Payment{}).Where("user_id = ?", target.ID).Count(&payments)
	if users != 0 || cvs != 0 || payments != 1 {
		t.Fatalf("users=%d cvs=%d payments=%d", users, cvs, payments)
	}
}

func TestAdminStats(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	user := testutil.CreateUser(t, srv.db, "payer@example.com", database.RoleUser)
	if _, _, err := srv.cvs.Save(context.Background(), user.ID, document.SaveInput{}); err != nil {
		t.Fatalf("seed cv: %v", err)
	}
	activate(t, srv, user.ID, "ref-stats", database.TypeCV)

	w := srv.do(t, http.MethodGet, "/v1/admin/stats", srv.tokenFor(t, admin.ID, admin.Role), nil)
	expectStatus(t, w, http.StatusOK)
	stats := decodeBody(t, w)["stats"].(map[string]any)
	if stats["users"] != float64(2) || stats["cvs"] != float64(1) || stats["coverLetters"] != float64(0) {
		t.Fatalf("unexpected counts %v", stats)
	}
	if stats["activeSubscriptions"] != float64(1) || stats["revenue"] != float64(5000) {
		t.Fatalf("unexpected subscription stats %v", stats)
	}
}

func TestAdminDocumentEvents(t *testing.T) {
	srv := newTestServer(t)
	admin := testutil.CreateUser(t, srv.db, "root@example.com", database.RoleAdmin)
	token := srv.tokenFor(t, admin.ID, admin.Role)
	store := analytics.NewStore(srv.db)
	ctx := context.Background()

	for _, ev := range []analytics.Event{
		{DocumentType: database.DocumentTypeCV, DocumentID: 4, UserID: 9, Action: database.ActionView},
		{DocumentType: database.DocumentTypeCV, DocumentID: 4, UserID: 9, Action: database.ActionView},
		{DocumentType: database.DocumentTypeCV, DocumentID: 4, UserID: 9, Action: database.ActionDownload},
		{DocumentType: database.DocumentTypeCoverLetter, DocumentID: 4, UserID: 9, Action: database.ActionView},
	} {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	w := srv.do(t, http.MethodGet, "/v1/admin/events?documentType=CV&documentId=4", token, nil)
	expectStatus(t, w, http.StatusOK)
	counts := decodeBody(t, w)["counts"].(map[string]any)
	if counts[database.ActionView] != float64(2) || counts[database.ActionDownload] != float64(1) {
		t.Fatalf("unexpected counts %v", counts)
	}

	w = srv.do(t, http.MethodGet, "/v1/admin/events?documentType=Invoice&documentId=4", token, nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = srv.do(t, http.MethodGet, "/v1/admin/events?documentType=CV&documentId=abc", token, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

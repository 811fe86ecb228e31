package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvbuilder/internal/database"
	"cvbuilder/internal/testutil"
)

func TestCronEndpointsRequireSecret(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{
		"/v1/cron/expire-subscriptions",
		"/v1/cron/expire-subscriptions?key=wrong",
		"/v1/cron/fix-subscription-durations?key=",
	} {
		w := srv.do(t, http.MethodGet, path, "", nil)
		expectStatus(t, w, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/cron/expire-subscriptions", nil)
	req.Header.Set("X-Cron-Key", testCronSecret)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
}

func TestCronExpireSweepsOverdueRows(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "late@example.com", database.RoleUser)
	now := time.Now().UTC()
	rows := []database.Subscription{
		{UserID: user.ID, Plan: database.PlanMonthly, Type: database.TypeCV, StartDate: now.AddDate(0, 0, -40), EndDate: now.AddDate(0, 0, -10), Amount: 1, Status: database.SubscriptionActive, PaymentReference: "old"},
		{UserID: user.ID, Plan: database.PlanMonthly, Type: database.TypeCV, StartDate: now, EndDate: now.AddDate(0, 0, 30), Amount: 1, Status: database.SubscriptionActive, PaymentReference: "new"},
	}
	if err := srv.db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	path := "/v1/cron/expire-subscriptions?key=" + testCronSecret
	w := srv.do(t, http.MethodGet, path, "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["expired"]; got != float64(1) {
		t.Fatalf("expected 1 expired, got %v", got)
	}
	w = srv.do(t, http.MethodGet, path, "", nil)
	if got := decodeBody(t, w)["expired"]; got != float64(0) {
		t.Fatalf("second sweep should be a no-op, got %v", got)
	}
}

func TestCronFixDurations(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "fix@example.com", database.RoleUser)
	start := time.Now().UTC().Truncate(time.Second)
	row := database.Subscription{
		UserID:    user.ID, Plan: database.PlanQuarterly, Type: database.TypeAll,
		StartDate: start, EndDate: start.AddDate(0, 0, 30), Amount: 1,
		Status:    database.SubscriptionActive, PaymentReference: "short",
	}
	if err := srv.db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	path := fmt.Sprintf("/v1/cron/fix-subscription-durations?key=%s", testCronSecret)
	w := srv.do(t, http.MethodGet, path, "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["fixed"]; got != float64(1) {
		t.Fatalf("expected 1 fixed, got %v", got)
	}

	ent, err := srv.subs.Entitlement(context.Background(), user.ID, database.TypeAll)
	if err != nil {
		t.Fatalf("entitlement: %v", err)
	}
	if !ent.Subscription.EndDate.Equal(start.AddDate(0, 0, 90)) {
		t.Fatalf("expected 90-day duration, got end %v", ent.Subscription.EndDate)
	}
}

func TestSubscriptionHistoryAndCancel(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "hist@example.com", database.RoleUser)
	other := testutil.CreateUser(t, srv.db, "other@example.com", database.RoleUser)
	activate(t, srv, user.ID, "ref-h", database.TypeCV)
	token := srv.tokenFor(t, user.ID, user.Role)

	w := srv.do(t, http.MethodGet, "/v1/subscriptions/history", token, nil)
	expectStatus(t, w, http.StatusOK)
	items := decodeBody(t, w)["subscriptions"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(items))
	}
	id := uint(items[0].(map[string]any)["id"].(float64))
	path := fmt.Sprintf("/v1/subscriptions/%d/cancel", id)

	w = srv.do(t, http.MethodPost, path, srv.tokenFor(t, other.ID, other.Role), nil)
	expectStatus(t, w, http.StatusNotFound)

	w = srv.do(t, http.MethodPost, path, token, nil)
	expectStatus(t, w, http.StatusOK)
	w = srv.do(t, http.MethodPost, path, token, nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = srv.do(t, http.MethodGet, "/v1/subscriptions/me", token, nil)
	if decodeBody(t, w)["hasCV"] != false {
		t.Fatalf("canceled subscription still grants access")
	}
}

func TestPlansAndTemplatesArePublic(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/v1/subscriptions/plans", "", nil)
	expectStatus(t, w, http.StatusOK)
	plans := decodeBody(t, w)["plans"].([]any)
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if monthly := plans[0].(map[string]any); monthly["id"] != database.PlanMonthly || monthly["amount"] != float64(5000) {
		t.Fatalf("unexpected first plan %v", monthly)
	}

	w = srv.do(t, http.MethodGet, "/v1/templates?kind=cover-letter", "", nil)
	expectStatus(t, w, http.StatusOK)
	w = srv.do(t, http.MethodGet, "/v1/templates?kind=invoice", "", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

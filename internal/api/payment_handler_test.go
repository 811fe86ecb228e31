package api

import (
	"net/http"
	"testing"
	"time"

	"cvbuilder/internal/database"
	"cvbuilder/internal/errcode"
	"cvbuilder/internal/payment"
	"cvbuilder/internal/testutil"
)

func TestInitializeUsesCatalogPrice(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	w := srv.do(t, http.MethodPost, "/v1/payments/initialize", token, map[string]any{
		"plan": "quarterly", "type": "all", "reference": "ref-init",
	})
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["authorizationUrl"] != "https://checkout.example/ref-init" || body["reference"] != "ref-init" {
		t.Fatalf("unexpected response %v", body)
	}

	if len(srv.gateway.initialized) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(srv.gateway.initialized))
	}
	req := srv.gateway.initialized[0]
	if req.Amount != 12000 || req.Email != "buyer@example.com" || req.Currency != "NGN" {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if req.Metadata["plan"] != "quarterly" || req.Metadata["type"] != "all" || req.Metadata["userId"] != user.ID {
		t.Fatalf("unexpected metadata %v", req.Metadata)
	}
}

func TestInitializeRejectsUnknownPlanOrType(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	for _, body := range []map[string]any{
		{"plan": "weekly", "type": "cv"},
		{"plan": "trial", "type": "cv"},
		{"plan": "monthly", "type": "resume"},
	} {
		w := srv.do(t, http.MethodPost, "/v1/payments/initialize", token, body)
		expectStatus(t, w, http.StatusBadRequest)
	}
	if len(srv.gateway.initialized) != 0 {
		t.Fatalf("gateway must not be called for invalid requests")
	}
}

func TestVerifyActivatesOnceAndExtends(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	srv.gateway.verification = payment.Verification{
		Success:  true,
		Amount:   500000,
		Currency: "NGN",
		Email:    "Buyer@Example.com",
		Plan:     "monthly",
		Type:     "cv",
		UserID:   user.ID,
		PaidAt:   time.Now().UTC(),
	}

	w := srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-a", token, nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["created"] != true {
		t.Fatalf("expected new subscription, got %v", body)
	}
	first := body["subscription"].(map[string]any)
	if first["amount"] != float64(5000) || first["status"] != database.SubscriptionActive {
		t.Fatalf("unexpected subscription %v", first)
	}

	// 同一流水号再次核验不会重复开通。
	w = srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-a", token, nil)
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["created"] != false {
		t.Fatalf("expected idempotent verify")
	}
	var count int64
	srv.db.Model(&database.Subscription{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 subscription, got %d", count)
	}

	// 新流水号从现有订阅的到期日起算。
	w = srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-b", token, nil)
	expectStatus(t, w, http.StatusOK)
	second := decodeBody(t, w)["subscription"].(map[string]any)
	start, _ := time.Parse(time.RFC3339Nano, second["startDate"].(string))
	prevEnd, _ := time.Parse(time.RFC3339Nano, first["endDate"].(string))
	if !start.Equal(prevEnd) {
		t.Fatalf("expected extension from %v, got start %v", first["endDate"], second["startDate"])
	}

	w = srv.do(t, http.MethodGet, "/v1/subscriptions/me", token, nil)
	expectStatus(t, w, http.StatusOK)
	status := decodeBody(t, w)
	if status["hasCV"] != true || status["hasCoverLetter"] != false {
		t.Fatalf("unexpected status %v", status)
	}
	if days := status["remainingDays"].(float64); days < 59 || days > 60 {
		t.Fatalf("expected about 60 remaining days, got %v", days)
	}
}

func TestVerifyUsesQueryFallbacks(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)
	srv.gateway.verification = payment.Verification{Success: true, Amount: 4000000, Currency: "NGN"}

	w := srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-q&plan=yearly&type=all", token, nil)
	expectStatus(t, w, http.StatusOK)
	sub := decodeBody(t, w)["subscription"].(map[string]any)
	if sub["plan"] != "yearly" || sub["type"] != "all" {
		t.Fatalf("unexpected subscription %v", sub)
	}
}

func TestVerifyFailures(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	w := srv.do(t, http.MethodGet, "/v1/payments/verify", token, nil)
	expectStatus(t, w, http.StatusBadRequest)

	srv.gateway.verification = payment.Verification{Success: false, Message: "Transaction was abandoned"}
	w = srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-x&plan=monthly&type=cv", token, nil)
	expectStatus(t, w, http.StatusBadRequest)

	srv.gateway.verification = payment.Verification{Success: true, Plan: "monthly", Type: "cv", UserID: user.ID + 100}
	w = srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-y", token, nil)
	expectStatus(t, w, http.StatusForbidden)

	srv.gateway.verification = payment.Verification{}
	srv.gateway.verifyErr = errcode.New(errcode.UpstreamUnavailable, "payment gateway unavailable")
	w = srv.do(t, http.MethodGet, "/v1/payments/verify?reference=ref-z", token, nil)
	expectStatus(t, w, http.StatusInternalServerError)

	var count int64
	srv.db.Model(&database.Subscription{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed verifications must not activate, got %d subscriptions", count)
	}
}

func TestVerifyRejectsUnderpaidOrForeignCurrency(t *testing.T) {
	srv := newTestServer(t)
	user := testutil.CreateUser(t, srv.db, "buyer@example.com", database.RoleUser)
	token := srv.tokenFor(t, user.ID, user.Role)

	cases := []struct {
		name string
		v    payment.Verification
		path string
	}{
		{"one naira for a yearly plan", payment.Verification{Success: true, Amount: 100, Currency: "NGN"}, "/v1/payments/verify?reference=cheap-1&plan=yearly&type=all"},
		{"monthly price for quarterly metadata", payment.Verification{Success: true, Amount: 500000, Currency: "NGN", Plan: "quarterly", Type: "cv"}, "/v1/payments/verify?reference=cheap-2"},
		{"right amount wrong currency", payment.Verification{Success: true, Amount: 500000, Currency: "USD", Plan: "monthly", Type: "cv"}, "/v1/payments/verify?reference=cheap-3"},
		{"trial cannot be bought", payment.Verification{Success: true, Amount: 500000, Currency: "NGN", Plan: "trial", Type: "cv"}, "/v1/payments/verify?reference=cheap-4"},
	}
	for _, tc := range cases {
		srv.gateway.verification = tc.v
		w := srv.do(t, http.MethodGet, tc.path, token, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", tc.name, w.Code, w.Body.String())
		}
	}

	var count int64
	srv.db.Model(&database.Subscription{}).Count(&count)
	if count != 0 {
		t.Fatalf("underpaid verifications must not activate, got %d subscriptions", count)
	}
}

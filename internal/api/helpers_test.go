package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/config"
	"cvbuilder/internal/document"
	"cvbuilder/internal/payment"
	"cvbuilder/internal/subscription"
	"cvbuilder/internal/testutil"
)

const testCronSecret = "cron-secret"

// fakeRedis 是 authRedis 的内存实现。
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

func (r *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return redis.NewIntResult(r.counts[key], nil)
}

func (r *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (r *fakeRedis) TTL(_ context.Context, key string) *redis.DurationCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	return redis.NewDurationResult(r.ttls[key], nil)
}

func (r *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := r.values[key]; ok {
			n++
		}
		if _, ok := r.counts[key]; ok {
			n++
		}
		delete(r.values, key)
		delete(r.counts, key)
		delete(r.ttls, key)
	}
	return redis.NewIntResult(n, nil)
}

func (r *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (r *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := value.(type) {
	case string:
		r.values[key] = v
	default:
		b, _ := json.Marshal(v)
		r.values[key] = string(b)
	}
	r.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

// fakeGateway 记录发起请求并返回预设的核验结果。
type fakeGateway struct {
	mu           sync.Mutex
	initialized  []payment.InitializeRequest
	verification payment.Verification
	verifyErr    error
}

func (g *fakeGateway) Initialize(_ context.Context, req payment.InitializeRequest) (payment.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = append(g.initialized, req)
	ref := req.Reference
	if ref == "" {
		ref = "generated-ref"
	}
	return payment.InitializeResult{
		AuthorizationURL: "https://checkout.example/" + ref,
		AccessCode:       "code-" + ref,
		Reference:        ref,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.verification
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, g.verifyErr
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	tokens  *auth.TokenService
	redis   *fakeRedis
	gateway *fakeGateway
	subs    *subscription.Service
	cvs     *document.CVService
	letters *document.CoverLetterService
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	tokens, err := auth.NewTokenService(privPEM, pubPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		API: config.APIConfig{
			AllowedOrigin: "https://app.example.com",
			CronSecret:    testCronSecret,
		},
		Auth: config.AuthConfig{
			LoginRateLimitPerHour: 20,
			LoginLockThreshold:    3,
			LoginLockTTL:          time.Minute,
		},
	}
	catalog := subscription.NewCatalog(config.PlanPrices{Monthly: 500000, Quarterly: 1200000, Yearly: 4000000}, "NGN")

	srv := &testServer{
		db:      db,
		tokens:  newTestTokens(t),
		redis:   newFakeRedis(),
		gateway: &fakeGateway{},
		subs:    subscription.NewService(db, catalog),
	}
	srv.cvs = document.NewCVService(db, analytics.Nop{}, srv.subs)
	srv.letters = document.NewCoverLetterService(db, analytics.Nop{}, srv.subs)

	srv.router = NewRouter(cfg.API, logger)
	RegisterRoutes(srv.router, Dependencies{
		Config:        cfg,
		DB:            db,
		Redis:         srv.redis,
		Logger:        logger,
		Tokens:        srv.tokens,
		CVs:           srv.cvs,
		CoverLetters:  srv.letters,
		Subscriptions: srv.subs,
		Payments:      srv.gateway,
		Events:        analytics.NewStore(db),
	})
	return srv
}

// tokenFor 直接签发访问令牌，跳过登录流程。
func (s *testServer) tokenFor(t *testing.T, userID uint, role string) string {
	t.Helper()
	pair, err := s.tokens.GenerateTokenPair(userID, role)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	return pair.AccessToken
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d got %d body=%s", want, w.Code, w.Body.String())
	}
}

// idOf 取出 {"success":true, key:{"id":...}} 中的 id。
func idOf(t *testing.T, w *httptest.ResponseRecorder, key string) uint {
	t.Helper()
	obj, ok := decodeBody(t, w)[key].(map[string]any)
	if !ok {
		t.Fatalf("response has no %q object: %s", key, w.Body.String())
	}
	id, ok := obj["id"].(float64)
	if !ok || id <= 0 {
		t.Fatalf("response %q has no id: %s", key, w.Body.String())
	}
	return uint(id)
}

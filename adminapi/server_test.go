package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/environment"
	"github.com/SharedCode/kvenv/gc"
	"github.com/SharedCode/kvenv/tree"
	"github.com/SharedCode/kvenv/walog"
)

func newTestServer(t *testing.T) (*Server, *environment.Environment, *gc.Collector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := walog.NewMemLog()
	treeStore := tree.NewStore(log)
	collector := gc.New(nil, nil)
	env, err := environment.Open(context.Background(), log, treeStore, collector, kvenv.DefaultEnvironmentConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return NewServer(env, collector, nil), env, collector
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetStoresEmptyWithNoOpenStores(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doGet(t, s, "/admin/v1/stores")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []storeView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no known stores, got %v", out)
	}
}

func TestGetStoresReflectsOpenedStore(t *testing.T) {
	s, env, _ := newTestServer(t)
	txn, err := env.BeginTransaction(environment.BeginOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, _, err := env.OpenStore(txn, "widgets", kvenv.StoreConfig{}, true); err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	rec := doGet(t, s, "/admin/v1/stores")
	var out []storeView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Name != "widgets" {
		t.Fatalf("expected [widgets], got %v", out)
	}
}

func TestGetTransactionsReflectsLiveCount(t *testing.T) {
	s, env, _ := newTestServer(t)
	if _, err := env.BeginTransaction(environment.BeginOptions{}); err != nil {
		t.Fatalf("begin: %v", err)
	}

	rec := doGet(t, s, "/admin/v1/transactions")
	var out []transactionView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 live transaction, got %v", out)
	}
}

func TestGetGCStatusReflectsSuspend(t *testing.T) {
	s, _, collector := newTestServer(t)
	collector.Suspend()

	rec := doGet(t, s, "/admin/v1/gc")
	var out gcStatusView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Suspended {
		t.Fatalf("expected suspended=true, got %+v", out)
	}
}

func TestGetDeferredStatusZeroWhenNoLiveTransactions(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doGet(t, s, "/admin/v1/deferred")
	var out deferredStatusView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.PendingTasks != 0 {
		t.Fatalf("expected 0 pending tasks, got %+v", out)
	}
}

func TestUnauthorizedWithoutBearerTokenWhenAuthConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := walog.NewMemLog()
	treeStore := tree.NewStore(log)
	collector := gc.New(nil, nil)
	env, err := environment.Open(context.Background(), log, treeStore, collector, kvenv.DefaultEnvironmentConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := NewServer(env, collector, &kvenv.AdminAuthConfig{OktaIssuer: "https://example.okta.com/oauth2/default"})

	rec := doGet(t, s, "/admin/v1/stores")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

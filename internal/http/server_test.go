package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/interchange"
	"fintrack/internal/ledger"
	remotemem "fintrack/internal/remote/memory"
	"fintrack/internal/state"
	storagemem "fintrack/internal/storage/memory"
	"fintrack/internal/syncer"
)

type testEnv struct {
	srv    *Server
	remote *remotemem.Store
	blobs  *storagemem.Store
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	blobs := storagemem.New()
	rem := remotemem.New()
	if opts.Registry == nil {
		opts.Registry = state.NewRegistry(state.Options{
			Accounts:  core.DefaultAccounts(),
			Persister: blobs,
			Now:       func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) },
		})
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewService(rem, nopSender{}, auth.Config{
			Secret:     []byte("0123456789abcdef"),
			BcryptCost: bcrypt.MinCost,
		}, nil)
	}
	if opts.Sync == nil {
		opts.Sync = syncer.New(rem, nil)
	}
	srv := NewServer(":0", opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, remote: rem, blobs: blobs}
}

type nopSender struct{}

func (nopSender) SendMagicLink(context.Context, string, string) error { return nil }

// do sends a request through the full middleware chain. body may be nil, a
// string or any JSON-encodable value.
func (e *testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "198.51.100.7:4242"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T from %q: %v", v, rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	expectStatus(t, rec, http.StatusOK)
	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	expectStatus(t, env.do(t, http.MethodGet, "/readyz", nil, ""), http.StatusOK)

	down := newTestEnv(t, Options{Checks: map[string]Pinger{"postgres": failingPinger{}}})
	rec = down.do(t, http.MethodGet, "/readyz", nil, "")
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("readyz body = %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Errorf("metrics body = %s", rec.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodPost, "/healthz", nil, ""), http.StatusMethodNotAllowed)
}

func TestRecordLifecycleAndAnalyticsCache(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/api/records", map[string]any{
		"type": "expense", "account": "Cash", "date": "2025-03-02", "time": "08:30:00",
		"amount": "1.234,50", "category": "Food", "subcategory": "Groceries",
	}, "")
	expectStatus(t, rec, http.StatusCreated)
	tx := decode[core.Tx](t, rec)
	if tx.ID == "" || tx.Amount != -1234.5 || tx.Type != core.Expense {
		t.Fatalf("created %+v", tx)
	}

	rec = env.do(t, http.MethodPost, "/api/records", map[string]any{
		"type": "Income", "account": "Checking", "date": "2025-03-05", "amount": 2000, "category": "Income",
	}, "")
	expectStatus(t, rec, http.StatusCreated)

	page := decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records?type=expense", nil, ""))
	if page.Total != 1 || page.Items[0].ID != tx.ID {
		t.Fatalf("page = %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/api/summary?month=2025-03", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first summary X-Cache = %q", rec.Header().Get("X-Cache"))
	}
	sum := decode[summaryResponse](t, rec)
	if sum.Totals.Income != 2000 || sum.Totals.Expense != 1234.5 {
		t.Fatalf("totals = %+v", sum.Totals)
	}

	rec = env.do(t, http.MethodGet, "/api/summary?month=2025-03", nil, "")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("repeat summary X-Cache = %q", rec.Header().Get("X-Cache"))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/records/"+tx.ID, nil, ""), http.StatusOK)
	rec = env.do(t, http.MethodGet, "/api/summary?month=2025-03", nil, "")
	if rec.Header().Get("X-Cache") != "MISS" || decode[summaryResponse](t, rec).Totals.Expense != 0 {
		t.Errorf("summary after delete: %s %s", rec.Header().Get("X-Cache"), rec.Body.String())
	}

	if blobs, _ := env.blobs.LoadBlobs(context.Background(), state.LocalNamespace); len(blobs["records"]) == 0 {
		t.Error("records were not persisted to local storage")
	}
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"zero amount", http.MethodPost, "/api/records", map[string]any{"type": "Expense", "account": "Cash", "amount": "0", "category": "Food"}, http.StatusUnprocessableEntity},
		{"missing category", http.MethodPost, "/api/records", map[string]any{"type": "Expense", "account": "Cash", "amount": 3}, http.StatusUnprocessableEntity},
		{"unknown account", http.MethodPost, "/api/records", map[string]any{"type": "Expense", "account": "Wallet", "amount": 3, "category": "Food"}, http.StatusUnprocessableEntity},
		{"transfer type", http.MethodPost, "/api/records", map[string]any{"type": "Transfer", "account": "Cash", "amount": 3}, http.StatusUnprocessableEntity},
		{"bad json", http.MethodPost, "/api/records", `{"type":`, http.StatusBadRequest},
		{"same account transfer", http.MethodPost, "/api/transfers", map[string]any{"from": "Cash", "to": "Cash", "amount": 10}, http.StatusUnprocessableEntity},
		{"bad month", http.MethodPut, "/api/month", map[string]any{"month": "2025-13"}, http.StatusUnprocessableEntity},
		{"negative budget", http.MethodPut, "/api/budget", map[string]any{"essentials": -1}, http.StatusUnprocessableEntity},
		{"bad summary month", http.MethodGet, "/api/summary?month=march", nil, http.StatusUnprocessableEntity},
		{"bad groupBy", http.MethodGet, "/api/breakdown?groupBy=week", nil, http.StatusBadRequest},
		{"delete without ids", http.MethodDelete, "/api/records", map[string]any{"ids": []string{}}, http.StatusBadRequest},
		{"unknown goal", http.MethodPost, "/api/goals/nope/contribute", map[string]any{"amount": 5}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.body, "")
			expectStatus(t, rec, tt.want)
			if decode[errorBody](t, rec).Error.Code == "" {
				t.Error("missing error code")
			}
		})
	}

	if n := len(decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records", nil, "")).Items); n != 0 {
		t.Errorf("rejected requests left %d records", n)
	}
}

func TestTransferAndPairDelete(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/api/transfers", map[string]any{
		"from": "Checking", "to": "Savings", "amount": "250,00", "date": "2025-03-03", "time": "10:00:00",
	}, "")
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct {
		TransferID string    `json:"transferId"`
		Legs       []core.Tx `json:"legs"`
	}](t, rec)
	if len(created.Legs) != 2 || created.Legs[0].Amount != -250 || created.Legs[1].Amount != 250 {
		t.Fatalf("legs = %+v", created.Legs)
	}

	bal := decode[balancesResponse](t, env.do(t, http.MethodGet, "/api/balances", nil, ""))
	if bal.Balances["Checking"] != -250 || bal.Balances["Savings"] != 250 || bal.Overall != 0 {
		t.Fatalf("balances = %+v", bal)
	}

	rec = env.do(t, http.MethodDelete, "/api/records/"+created.Legs[0].ID, nil, "")
	expectStatus(t, rec, http.StatusOK)
	if removed := decode[map[string][]string](t, rec)["removed"]; len(removed) != 2 {
		t.Fatalf("default delete removed %v, want both legs", removed)
	}

	rec = env.do(t, http.MethodPost, "/api/transfers", map[string]any{
		"from": "Cash", "to": "Savings", "amount": 10, "date": "2025-03-04", "time": "10:00:00",
	}, "")
	expectStatus(t, rec, http.StatusCreated)
	second := decode[struct {
		Legs []core.Tx `json:"legs"`
	}](t, rec)
	rec = env.do(t, http.MethodDelete, "/api/records", map[string]any{"ids": []string{second.Legs[1].ID}, "pairs": false}, "")
	expectStatus(t, rec, http.StatusOK)
	if removed := decode[map[string][]string](t, rec)["removed"]; len(removed) != 1 {
		t.Fatalf("pairs=false removed %v, want one leg", removed)
	}
}

func TestSettingsTagsAndGoals(t *testing.T) {
	env := newTestEnv(t, Options{})

	expectStatus(t, env.do(t, http.MethodPut, "/api/month", map[string]string{"month": "2025-02"}, ""), http.StatusOK)
	if m := decode[map[string]string](t, env.do(t, http.MethodGet, "/api/month", nil, ""))["month"]; m != "2025-02" {
		t.Errorf("month = %q", m)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/budget", map[string]any{"essentials": "800", "discretionary": 300, "savings": 200}, ""), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/records", map[string]any{
		"type": "Expense", "account": "Cash", "date": "2025-02-10", "amount": 200, "category": "Food",
	}, ""), http.StatusCreated)
	b := decode[budgetResponse](t, env.do(t, http.MethodGet, "/api/budget", nil, ""))
	if b.Usage.Month != "2025-02" || b.Usage.Essentials.Spent != 200 || b.Budget.Essentials != 800 {
		t.Fatalf("budget = %+v", b)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/tags", map[string]string{"name": "Pets"}, ""), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPost, "/api/tags", map[string]string{"name": "Pets"}, ""), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/tags/Pets", map[string]string{"name": "Vet"}, ""), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPut, "/api/tags/Pets/Vet", map[string]string{"name": "Veterinary"}, ""), http.StatusOK)
	rec := env.do(t, http.MethodPut, "/api/tags/Food", map[string]string{"name": "Groceries & dining"}, "")
	expectStatus(t, rec, http.StatusOK)
	tags := decode[core.Taxonomy](t, rec)
	if _, ok := tags["Food"]; ok || len(tags["Pets"]) != 1 || tags["Pets"][0] != "Veterinary" {
		t.Fatalf("tags = %v", tags)
	}
	page := decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records", nil, ""))
	if page.Items[0].Category != "Groceries & dining" {
		t.Errorf("rename did not rewrite records: %+v", page.Items[0])
	}

	rec = env.do(t, http.MethodPost, "/api/goals", map[string]any{"name": "Bike", "target_amount": 400}, "")
	expectStatus(t, rec, http.StatusCreated)
	goal := decode[ledger.GoalStatus](t, rec)
	rec = env.do(t, http.MethodPost, "/api/goals/"+goal.ID+"/contribute", map[string]any{"amount": "100"}, "")
	expectStatus(t, rec, http.StatusOK)
	if st := decode[ledger.GoalStatus](t, rec); st.Percent != 25 || st.CurrentAmount != 100 {
		t.Fatalf("after contribute %+v", st)
	}
	expectStatus(t, env.do(t, http.MethodPut, "/api/goals/missing", map[string]any{"name": "X", "target_amount": 1}, ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/goals/"+goal.ID, nil, ""), http.StatusNoContent)
	if goals := decode[[]ledger.GoalStatus](t, env.do(t, http.MethodGet, "/api/goals", nil, "")); len(goals) != 0 {
		t.Errorf("goals = %+v", goals)
	}
}

func TestAuthSessionsAndSync(t *testing.T) {
	env := newTestEnv(t, Options{})

	expectStatus(t, env.do(t, http.MethodPost, "/api/sync", nil, ""), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodGet, "/api/records", nil, "garbage"), http.StatusUnauthorized)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{"email": "ann@example.com", "password": "short"}, "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	rec = env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{"email": "ann@example.com", "password": "long enough"}, "")
	expectStatus(t, rec, http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{"email": "ann@example.com", "password": "long enough"}, ""), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "wrong pass"}, ""), http.StatusUnauthorized)
	tok := decode[auth.Token](t, rec)

	me := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/auth/me", nil, tok.AccessToken))
	if me["session"].(map[string]any)["email"] != "ann@example.com" {
		t.Fatalf("me = %v", me)
	}

	// Signed-in records live in the user's namespace, not the local one.
	expectStatus(t, env.do(t, http.MethodPost, "/api/records", map[string]any{
		"type": "Expense", "account": "Cash", "date": "2025-03-01", "amount": 12, "category": "Food",
	}, tok.AccessToken), http.StatusCreated)
	if p := decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records", nil, "")); p.Total != 0 {
		t.Fatalf("local namespace sees %d records", p.Total)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/sync?mode=sideways", nil, tok.AccessToken), http.StatusBadRequest)
	rec = env.do(t, http.MethodPost, "/api/sync?mode=push", nil, tok.AccessToken)
	expectStatus(t, rec, http.StatusOK)
	if res := decode[syncer.Result](t, rec); res.Pushed != 1 {
		t.Fatalf("push result = %+v", res)
	}
	remoteRecords, err := env.remote.FetchRecords(context.Background(), tok.Session.UserID)
	if err != nil || len(remoteRecords) != 1 {
		t.Fatalf("remote records = %v, %v", remoteRecords, err)
	}

	// Remote failure: 502, local delete kept.
	env.remote.Fail = errors.New("connection reset")
	rec = env.do(t, http.MethodDelete, "/api/records/"+remoteRecords[0].ID, nil, tok.AccessToken)
	expectStatus(t, rec, http.StatusBadGateway)
	if decode[errorBody](t, rec).Error.Code != codeRemote {
		t.Errorf("body = %s", rec.Body.String())
	}
	if p := decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records", nil, tok.AccessToken)); p.Total != 0 {
		t.Errorf("local delete was rolled back: %+v", p)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/sync", nil, tok.AccessToken), http.StatusBadGateway)
	env.remote.Fail = nil

	rec = env.do(t, http.MethodPost, "/api/sync?mode=pull", nil, tok.AccessToken)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[ledger.Page](t, env.do(t, http.MethodGet, "/api/records", nil, tok.AccessToken)); p.Total != 1 {
		t.Errorf("pull should restore the remote record, got %d", p.Total)
	}
}

func TestWatchLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := decode[auth.Token](t, env.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": "bo@example.com", "password": "long enough"}, ""))

	expectStatus(t, env.do(t, http.MethodPost, "/api/sync/watch", nil, ""), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodPost, "/api/sync/watch", nil, tok.AccessToken), http.StatusAccepted)
	if !env.srv.sync.Watching(tok.Session.UserID) {
		t.Fatal("expected an active subscription")
	}
	expectStatus(t, env.do(t, http.MethodDelete, "/api/sync/watch", nil, tok.AccessToken), http.StatusOK)
	if env.srv.sync.Watching(tok.Session.UserID) {
		t.Fatal("subscription still active after unwatch")
	}
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, Options{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/records", map[string]any{
		"type": "Expense", "account": "Cash", "date": "2025-03-01", "amount": 12, "category": "Food",
	}, ""), http.StatusCreated)

	rec := env.do(t, http.MethodGet, "/api/export?format=yaml", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != interchange.FormatYAML.ContentType() ||
		!strings.Contains(rec.Header().Get("Content-Disposition"), ".yaml") {
		t.Fatalf("headers = %v", rec.Header())
	}
	exported := rec.Body.String()
	expectStatus(t, env.do(t, http.MethodGet, "/api/export?format=xml", nil, ""), http.StatusBadRequest)

	other := newTestEnv(t, Options{})
	rec = other.do(t, http.MethodPost, "/api/import?format=yaml", exported, "")
	expectStatus(t, rec, http.StatusOK)
	if sum := decode[interchange.Summary](t, rec); sum.Transactions != 1 || !sum.Budget {
		t.Fatalf("summary = %+v", sum)
	}

	rec = other.do(t, http.MethodPost, "/api/import", `{"transactions": [{"id": "x"}]}`, "")
	expectStatus(t, rec, http.StatusBadRequest)
	if decode[errorBody](t, rec).Error.Code != codeMalformed {
		t.Errorf("body = %s", rec.Body.String())
	}
	if p := decode[ledger.Page](t, other.do(t, http.MethodGet, "/api/records", nil, "")); p.Total != 1 {
		t.Errorf("malformed import changed state: %d records", p.Total)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMin: 2})
	body := map[string]string{"name": "X"}

	expectStatus(t, env.do(t, http.MethodPost, "/api/tags", body, ""), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPost, "/api/tags", body, ""), http.StatusConflict)
	rec := env.do(t, http.MethodPost, "/api/tags", body, "")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if decode[errorBody](t, rec).Error.Code != codeRateLimited {
		t.Errorf("body = %s", rec.Body.String())
	}
	for i := 0; i < 5; i++ {
		expectStatus(t, env.do(t, http.MethodGet, "/api/tags", nil, ""), http.StatusOK)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	got := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/normalize?amount=1.234,5", nil, ""))
	if got["value"] != 1234.5 || got["formatted"] != "1.234,50" {
		t.Fatalf("normalize = %v", got)
	}
}

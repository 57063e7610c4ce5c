package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poke-backend/internal/model"
	"poke-backend/internal/repository"
	"poke-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Fakes implementing the router's dependency interfaces. Each returns a
// scripted result or error so tests can exercise the status mapping
// without a database.

type fakePokes struct {
	result *service.PokeResult
	quota  *model.QuotaStatus
	err    error
}

func (f *fakePokes) Poke(_ context.Context, actorID, targetID int64, token string) (*service.PokeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePokes) GetQuota(_ context.Context, accountID int64) (*model.QuotaStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quota, nil
}

type fakeAccounts struct {
	account *model.Account
	created bool
	balance *model.BalanceStatus
	tx      *model.Transaction
	err     error
}

func (f *fakeAccounts) Register(_ context.Context, id int64, displayName string) (*model.Account, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.account, f.created, nil
}

func (f *fakeAccounts) GetBalance(_ context.Context, id int64) (*model.BalanceStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

func (f *fakeAccounts) RequestWithdrawal(_ context.Context, accountID, amount int64) (*model.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func (f *fakeAccounts) AdminAdjust(_ context.Context, accountID, amount int64, description, idempotencyKey string, override bool) (*model.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func (f *fakeAccounts) ApplyReferralBonus(_ context.Context, referrerID, refereeID int64) (*model.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

type fakeAttestations struct {
	attestation *model.Attestation
	err         error
}

func (f *fakeAttestations) Issue(_ context.Context, actorID, targetID int64) (*model.Attestation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.attestation, nil
}

type fakeLedger struct {
	transactions []*model.Transaction
	err          error
}

func (f *fakeLedger) ListTransactions(_ context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions, nil
}

type fakeSnapshots struct {
	snapshot *model.Snapshot
	err      error
}

func (f *fakeSnapshots) Pull(_ context.Context, accountID int64) (*model.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func newTestRouter(deps *Dependencies) *gin.Engine {
	if deps.Pokes == nil {
		deps.Pokes = &fakePokes{}
	}
	if deps.Accounts == nil {
		deps.Accounts = &fakeAccounts{}
	}
	if deps.Attestations == nil {
		deps.Attestations = &fakeAttestations{}
	}
	if deps.Ledger == nil {
		deps.Ledger = &fakeLedger{}
	}
	if deps.Snapshots == nil {
		deps.Snapshots = &fakeSnapshots{}
	}
	return NewRouter(deps)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRequestPoke_Success(t *testing.T) {
	pokes := &fakePokes{
		result: &service.PokeResult{
			Action:        &model.Action{ID: "a1b2", ActorID: 1, TargetID: 2},
			ActorBalance:  150,
			TargetBalance: 250,
			ActorQuota:    &model.QuotaStatus{SentToday: 1, RemainingSends: 1},
		},
	}
	router := newTestRouter(&Dependencies{Pokes: pokes})

	w := doJSON(t, router, http.MethodPost, "/api/pokes", gin.H{
		"actor_id": 1, "target_id": 2, "attestation_token": "tok",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "a1b2", body["action_id"])
	assert.Equal(t, float64(150), body["actor_balance"])
	assert.Equal(t, float64(250), body["target_balance"])
}

func TestRequestPoke_RejectionReasons(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"self poke", service.ErrSelfPoke, "self_poke"},
		{"target inactive", service.ErrTargetInactive, "target_inactive"},
		{"gate not satisfied", service.ErrGateNotSatisfied, "gate_not_satisfied"},
		{"already acted", repository.ErrAlreadyActedWithCounterpart, "already_acted_with_counterpart"},
		{"daily limit", repository.ErrDailyLimitReached, "daily_limit_reached"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&Dependencies{Pokes: &fakePokes{err: tc.err}})
			w := doJSON(t, router, http.MethodPost, "/api/pokes", gin.H{
				"actor_id": 1, "target_id": 2, "attestation_token": "tok",
			})

			require.Equal(t, http.StatusConflict, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, false, body["accepted"])
			assert.Equal(t, tc.reason, body["reason"])
		})
	}
}

func TestRequestPoke_RetryableFailure(t *testing.T) {
	err := service.MarkRetryable(errors.New("connection reset"))
	router := newTestRouter(&Dependencies{Pokes: &fakePokes{err: err}})

	w := doJSON(t, router, http.MethodPost, "/api/pokes", gin.H{
		"actor_id": 1, "target_id": 2, "attestation_token": "tok",
	})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "temporary failure, try again", decodeBody(t, w)["error"])
}

func TestRequestPoke_InternalErrorIsOpaque(t *testing.T) {
	router := newTestRouter(&Dependencies{Pokes: &fakePokes{err: errors.New("pq: secret detail")}})

	w := doJSON(t, router, http.MethodPost, "/api/pokes", gin.H{
		"actor_id": 1, "target_id": 2, "attestation_token": "tok",
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "internal error", body["error"])
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRequestPoke_BadBody(t *testing.T) {
	router := newTestRouter(&Dependencies{})

	w := doJSON(t, router, http.MethodPost, "/api/pokes", gin.H{"actor_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueAttestation(t *testing.T) {
	expires := time.Now().Add(5 * time.Minute).UTC()
	router := newTestRouter(&Dependencies{Attestations: &fakeAttestations{
		attestation: &model.Attestation{Token: "tok-1", ExpiresAt: expires},
	}})

	w := doJSON(t, router, http.MethodPost, "/api/attestations", gin.H{
		"actor_id": 1, "target_id": 2,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok-1", decodeBody(t, w)["token"])
}

func TestIssueAttestation_SelfPair(t *testing.T) {
	router := newTestRouter(&Dependencies{Attestations: &fakeAttestations{err: service.ErrSelfPoke}})

	w := doJSON(t, router, http.MethodPost, "/api/attestations", gin.H{
		"actor_id": 1, "target_id": 1,
	})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "self_poke", decodeBody(t, w)["reason"])
}

func TestRegister(t *testing.T) {
	accounts := &fakeAccounts{
		account: &model.Account{ID: 7, DisplayName: "bora", Balance: 100},
		created: true,
	}
	router := newTestRouter(&Dependencies{Accounts: accounts})

	w := doJSON(t, router, http.MethodPost, "/api/accounts", gin.H{
		"id": 7, "display_name": "bora",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(100), body["balance"])
	assert.Equal(t, true, body["created"])

	accounts.created = false
	w = doJSON(t, router, http.MethodPost, "/api/accounts", gin.H{
		"id": 7, "display_name": "bora",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetBalance_NotFound(t *testing.T) {
	router := newTestRouter(&Dependencies{Accounts: &fakeAccounts{err: service.ErrAccountNotFound}})

	w := doJSON(t, router, http.MethodGet, "/api/accounts/99/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountID_Invalid(t *testing.T) {
	router := newTestRouter(&Dependencies{})

	for _, path := range []string{
		"/api/accounts/abc/balance",
		"/api/accounts/-1/quota",
		"/api/accounts/0/snapshot",
	} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestListTransactions_Pagination(t *testing.T) {
	ledger := &fakeLedger{transactions: []*model.Transaction{
		{ID: 2, Amount: 50}, {ID: 1, Amount: 100},
	}}
	router := newTestRouter(&Dependencies{Ledger: ledger})

	w := doJSON(t, router, http.MethodGet, "/api/accounts/1/transactions?page=2&page_size=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(5), body["page_size"])
	assert.Len(t, body["transactions"], 2)
}

func TestGetSnapshot(t *testing.T) {
	router := newTestRouter(&Dependencies{Snapshots: &fakeSnapshots{
		snapshot: &model.Snapshot{
			AccountID:  1,
			Quota:      model.QuotaStatus{DayKey: "2026-08-31", RemainingSends: 2},
			Balance:    model.BalanceStatus{Balance: 300},
			ServerTime: time.Now().UTC(),
		},
	}})

	w := doJSON(t, router, http.MethodGet, "/api/accounts/1/snapshot", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["account_id"])
}

func TestRequestWithdrawal(t *testing.T) {
	ref := "wd-ref"
	router := newTestRouter(&Dependencies{Accounts: &fakeAccounts{
		tx: &model.Transaction{ID: 5, Reference: &ref, Status: model.StatusPending, BalanceAfter: 500},
	}})

	w := doJSON(t, router, http.MethodPost, "/api/accounts/1/withdrawals", gin.H{"amount": 2000})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, model.StatusPending, body["status"])
	assert.Equal(t, float64(500), body["balance"])
}

func TestRequestWithdrawal_BelowMinimum(t *testing.T) {
	router := newTestRouter(&Dependencies{Accounts: &fakeAccounts{err: service.ErrBelowMinimumWithdrawal}})

	w := doJSON(t, router, http.MethodPost, "/api/accounts/1/withdrawals", gin.H{"amount": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRequestWithdrawal_InsufficientBalance(t *testing.T) {
	router := newTestRouter(&Dependencies{Accounts: &fakeAccounts{err: repository.ErrInsufficientBalance}})

	w := doJSON(t, router, http.MethodPost, "/api/accounts/1/withdrawals", gin.H{"amount": 2000})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_balance", decodeBody(t, w)["reason"])
}

func TestAdminAdjust(t *testing.T) {
	router := newTestRouter(&Dependencies{Accounts: &fakeAccounts{
		tx: &model.Transaction{ID: 9, BalanceAfter: 50},
	}})

	w := doJSON(t, router, http.MethodPost, "/api/admin/adjustments", gin.H{
		"account_id": 1, "amount": -100, "idempotency_key": "adj:1", "override": true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(50), decodeBody(t, w)["balance"])
}

func TestAdminAdjust_RequiresIdempotencyKey(t *testing.T) {
	router := newTestRouter(&Dependencies{})

	w := doJSON(t, router, http.MethodPost, "/api/admin/adjustments", gin.H{
		"account_id": 1, "amount": -100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeHealth struct {
	err error
}

func (f *fakeHealth) HealthCheck(context.Context) error {
	return f.err
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&Dependencies{Health: &fakeHealth{}})

	w := doJSON(t, router, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestHealthz_StorageDown(t *testing.T) {
	router := newTestRouter(&Dependencies{Health: &fakeHealth{err: errors.New("connection refused")}})

	w := doJSON(t, router, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}

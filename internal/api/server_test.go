package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewardledger/internal/app"
	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/model"
	tu "github.com/roach88/rewardledger/internal/testutil"
	"github.com/roach88/rewardledger/internal/testutil/ledgertest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "ledger.db")

	a, err := app.Open(cfg, app.Options{
		Logger: tu.DiscardLogger(),
		Clock:  tu.NewManualClock(tu.Epoch),
		NewIDs: func(kind string) model.IDGenerator { return tu.NewSequenceGenerator(kind) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	s, err := New(a)
	require.NoError(t, err)
	return s, a
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestConfirm_OK(t *testing.T) {
	s, a := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"P1"}`)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C","referrer_id":"P1"}`)

	w := do(t, s, http.MethodPost, "/v1/rewards/confirm",
		`{"user_id":"C","reward_type":"INSTANT","ip":"203.0.113.7","device_id":"pixel-7"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	u := ledgertest.MustUser(t, a.Store, "C")
	assert.Equal(t, "0.05", u.Balance.String())
	assert.Equal(t, "203.0.113.7", u.LastIP)
	assert.Equal(t, "0.005", ledgertest.MustUser(t, a.Store, "P1").PendingBalance.String())
}

func TestConfirm_DuplicateStillOK(t *testing.T) {
	s, a := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C"}`)

	body := `{"confirmation_id":"tx-1","user_id":"C","reward_type":"DEFAULT"}`
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/rewards/confirm", body).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/rewards/confirm", body).Code)

	assert.Equal(t, "0.01", ledgertest.MustUser(t, a.Store, "C").Balance.String())
}

func TestConfirm_AcceptsUnparsedAddresses(t *testing.T) {
	s, a := newTestServer(t)

	tests := []struct {
		user   string
		ip     string
		wantIP string
	}{
		{"with-port", "10.0.0.1:443", "10.0.0.1:443"},
		{"proxy", "Unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/users", `{"id":"`+tt.user+`"}`).Code)

			w := do(t, s, http.MethodPost, "/v1/rewards/confirm",
				`{"user_id":"`+tt.user+`","reward_type":"INSTANT","ip":"`+tt.ip+`"}`)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "OK", w.Body.String())

			u := ledgertest.MustUser(t, a.Store, tt.user)
			assert.Equal(t, "0.05", u.Balance.String())
			assert.Equal(t, tt.wantIP, u.LastIP)
		})
	}
}

func TestConfirm_FailuresAreOpaque(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"unknown user", `{"user_id":"ghost","reward_type":"INSTANT"}`, http.StatusInternalServerError, "Error"},
		{"missing user", `{"reward_type":"INSTANT"}`, http.StatusBadRequest, "Bad Request"},
		{"oversized ip", `{"user_id":"C","ip":"` + strings.Repeat("1", 257) + `"}`, http.StatusBadRequest, "Bad Request"},
		{"bad reward type", `{"user_id":"C","reward_type":"DROP TABLE"}`, http.StatusBadRequest, "Bad Request"},
		{"malformed json", `{"user_id":`, http.StatusBadRequest, "Bad Request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/rewards/confirm", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestUsers_CreateAndGet(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/users", `{"id":"P2"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"P1","referrer_id":"P2"}`)
	w = do(t, s, http.MethodPost, "/v1/users", `{"id":"C","referrer_id":"P1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodGet, "/v1/users/C", "")
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, "P1", u.ReferredBy)
	assert.Equal(t, "P2", u.GrandReferredBy)
	assert.Equal(t, 1, u.Level)

	generated := do(t, s, http.MethodPost, "/v1/users", `{}`)
	require.Equal(t, http.StatusCreated, generated.Code)
	assert.Contains(t, generated.Body.String(), `"id":"user-0001"`)
}

func TestUsers_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C"}`)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing user", http.MethodGet, "/v1/users/ghost", "", http.StatusNotFound, "USER_NOT_FOUND"},
		{"duplicate", http.MethodPost, "/v1/users", `{"id":"C"}`, http.StatusConflict, "USER_EXISTS"},
		{"unknown referrer", http.MethodPost, "/v1/users", `{"id":"D","referrer_id":"nope"}`, http.StatusUnprocessableEntity, "UNKNOWN_REFERRER"},
		{"self referral", http.MethodPost, "/v1/users", `{"id":"E","referrer_id":"E"}`, http.StatusUnprocessableEntity, "SELF_REFERRAL"},
		{"bad id", http.MethodPost, "/v1/users", `{"id":"has space"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"level zero", http.MethodPut, "/v1/users/C/level", `{"level":0}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"sweep unverified", http.MethodPost, "/v1/users/C/sweep", "", http.StatusConflict, "NOT_ELIGIBLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestUsers_LevelSweepAndCommissions(t *testing.T) {
	s, a := newTestServer(t)
	ctx := context.Background()
	do(t, s, http.MethodPost, "/v1/users", `{"id":"P1"}`)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C","referrer_id":"P1"}`)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/rewards/confirm", `{"user_id":"C","reward_type":"INSTANT"}`).Code)
	}

	w := do(t, s, http.MethodGet, "/v1/users/P1/commissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []model.CommissionLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 10)
	assert.Equal(t, model.LogPending, logs[0].Status)

	w = do(t, s, http.MethodPut, "/v1/users/C/level", `{"level":5}`)
	require.Equal(t, http.StatusOK, w.Code)

	tasks, err := a.Store.SweepTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	w = do(t, s, http.MethodPost, "/v1/users/C/sweep", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sweep SweepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sweep))
	assert.True(t, sweep.Complete)
	assert.Equal(t, 10, sweep.Report.Promoted)

	tasks, err = a.Store.SweepTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "manual sweep clears the queued task")

	p1 := ledgertest.MustUser(t, a.Store, "P1")
	assert.Equal(t, "0.05", p1.Balance.String())
	assert.True(t, p1.PendingBalance.IsZero())

	w = do(t, s, http.MethodPut, "/v1/users/C/level", `{"level":4}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUsers_Alerts(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C"}`)

	w := do(t, s, http.MethodGet, "/v1/users/C/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/users/ghost/alerts", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/users", `{"id":"C"}`)
	do(t, s, http.MethodPost, "/v1/rewards/confirm", `{"user_id":"C"}`)

	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rewardledger_settlements_total{result="ok"} 1`)
}

func TestRegisterValidations(t *testing.T) {
	require.NoError(t, registerValidations())
	require.NoError(t, registerValidations(), "later calls return the first result")

	v := validator.New()
	require.NoError(t, registerTags(v))

	type sample struct {
		User   string `validate:"userid"`
		Reward string `validate:"rewardtype"`
	}
	assert.NoError(t, v.Struct(sample{User: "user-0001", Reward: "INSTANT"}))

	err := v.Struct(sample{User: "bad id", Reward: "DROP TABLE"})
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"user: userid", "reward: rewardtype"}, fieldErrors(err))
}

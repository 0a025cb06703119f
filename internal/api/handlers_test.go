package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"points-ledger-bot/internal/config"
	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/service"
)

type fakeLedger struct {
	profile    *service.Profile
	profileErr error

	claim    service.GrantResult
	claimErr error

	visit       service.GrantResult
	visitErr    error
	visitedWith string

	activities []*model.Activity
	lastLimit  int

	withdrawals    []*model.WithdrawalRequest
	withdrawalsErr error

	board    []*model.LeaderboardEntry
	boardErr error

	withdraw       service.WithdrawalResult
	withdrawAmount int64
	withdrawDetail map[string]any
}

func (f *fakeLedger) Profile(_ context.Context, _ int64) (*service.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeLedger) ClaimDaily(_ context.Context, _ int64) (service.GrantResult, error) {
	return f.claim, f.claimErr
}

func (f *fakeLedger) VisitSocialChannel(_ context.Context, _ int64, channel string) (service.GrantResult, error) {
	f.visitedWith = channel
	return f.visit, f.visitErr
}

func (f *fakeLedger) ListActivities(_ context.Context, _ int64, limit int) ([]*model.Activity, error) {
	f.lastLimit = limit
	return f.activities, nil
}

func (f *fakeLedger) ListWithdrawals(_ context.Context, _ int64, limit int) ([]*model.WithdrawalRequest, error) {
	f.lastLimit = limit
	return f.withdrawals, f.withdrawalsErr
}

func (f *fakeLedger) Leaderboard(_ context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	f.lastLimit = limit
	return f.board, f.boardErr
}

func (f *fakeLedger) RequestWithdrawal(_ context.Context, _ int64, amount int64, details map[string]any) (service.WithdrawalResult, error) {
	f.withdrawAmount = amount
	f.withdrawDetail = details
	return f.withdraw, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newTestRouter(ledger Ledger, health HealthChecker) http.Handler {
	return NewRouter(config.APIConfig{}, NewHandler(ledger, nil, health))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestGetUser(t *testing.T) {
	claimed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{profile: &service.Profile{
		User:          &model.User{UserID: 42, Username: "alice", Points: 30, TotalPoints: 80, LastClaimTime: &claimed},
		ReferralCount: 2,
		Eligibility:   service.Eligibility{Outcome: service.Blocked, Remaining: 90*time.Minute + 500*time.Millisecond},
		Channels: []model.Channel{
			{ID: "telegram", Name: "Telegram", URL: "https://t.me/example"},
		},
	}}

	rec, body := do(t, newTestRouter(ledger, nil), http.MethodGet, "/api/user/42", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.EqualValues(t, 42, body["user_id"])
	assert.Equal(t, "alice", body["full_name"])
	assert.EqualValues(t, 30, body["points"])
	assert.EqualValues(t, 80, body["total_points"])
	assert.EqualValues(t, 2, body["referrals_count"])
	assert.Equal(t, false, body["can_claim"])
	assert.EqualValues(t, 5401, body["next_claim_time"])
	assert.Equal(t, []any{}, body["visited_socials"])
	assert.Equal(t, map[string]any{"telegram": "https://t.me/example"}, body["social_links"])
}

func TestGetUser_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		ledger := &fakeLedger{profileErr: service.ErrUserNotFound}
		rec, body := do(t, newTestRouter(ledger, nil), http.MethodGet, "/api/user/7", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", body["error"])
	})

	t.Run("bad id", func(t *testing.T) {
		rec, _ := do(t, newTestRouter(&fakeLedger{}, nil), http.MethodGet, "/api/user/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage failure is opaque", func(t *testing.T) {
		ledger := &fakeLedger{profileErr: errors.New("pq: connection refused on 10.0.0.5")}
		rec, body := do(t, newTestRouter(ledger, nil), http.MethodGet, "/api/user/7", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", body["error"])
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	})
}

func TestDailyClaim(t *testing.T) {
	tests := []struct {
		name       string
		result     service.GrantResult
		err        error
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "granted",
			result:     service.GrantResult{Outcome: service.Granted, Grant: service.Grant{Points: 10, TotalPoints: 10, PointsAdded: 10}},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["success"])
				assert.EqualValues(t, 10, body["points_added"])
				assert.Equal(t, "10 points added!", body["message"])
			},
		},
		{
			name:       "blocked",
			result:     service.GrantResult{Outcome: service.Blocked, Remaining: 2 * time.Hour},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, false, body["success"])
				assert.EqualValues(t, 7200, body["seconds_remaining"])
			},
		},
		{
			name:       "unknown user",
			result:     service.GrantResult{Outcome: service.NotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "storage failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{claim: tt.result, claimErr: tt.err}
			rec, body := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/daily_claim/1", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestSocialVisit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     service.GrantResult
		wantStatus int
		wantOK     any
	}{
		{
			name:       "granted",
			body:       `{"social_type":"telegram"}`,
			result:     service.GrantResult{Outcome: service.Granted, Grant: service.Grant{Points: 50, TotalPoints: 50, PointsAdded: 50}},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "already visited",
			body:       `{"social_type":"telegram"}`,
			result:     service.GrantResult{Outcome: service.AlreadyDone},
			wantStatus: http.StatusOK,
			wantOK:     false,
		},
		{
			name:       "unknown channel",
			body:       `{"social_type":"myspace"}`,
			result:     service.GrantResult{Outcome: service.InvalidInput, Reason: service.ErrUnknownChannel},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown user",
			body:       `{"social_type":"telegram"}`,
			result:     service.GrantResult{Outcome: service.NotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing field",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"social_type":"telegram","extra":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "two objects",
			body:       `{"social_type":"telegram"}{"social_type":"website"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{visit: tt.result}
			rec, body := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/social_visit/1", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantOK != nil {
				assert.Equal(t, tt.wantOK, body["success"])
			}
		})
	}
}

func TestSocialVisit_ValidationDetails(t *testing.T) {
	rec, body := do(t, newTestRouter(&fakeLedger{}, nil), http.MethodPost, "/api/social_visit/1", `{"social_type":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed", body["error"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "SocialType")
}

func TestActivities(t *testing.T) {
	ledger := &fakeLedger{activities: []*model.Activity{
		{ID: 2, UserID: 1, Kind: model.KindDailyClaim, Points: 10, Detail: model.ClaimDetail{ClaimTime: time.Unix(0, 0).UTC()}},
	}}
	router := newTestRouter(ledger, nil)

	rec, body := do(t, router, http.MethodGet, "/api/activities/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLimit, ledger.lastLimit)
	items, ok := body["activities"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "daily_claim", items[0].(map[string]any)["activity_type"])

	rec, _ = do(t, router, http.MethodGet, "/api/activities/1?limit=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, ledger.lastLimit)

	for _, q := range []string{"0", "101", "ten"} {
		rec, _ = do(t, router, http.MethodGet, "/api/activities/1?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", q)
	}
}

func TestActivities_EmptyIsArray(t *testing.T) {
	rec, _ := do(t, newTestRouter(&fakeLedger{}, nil), http.MethodGet, "/api/activities/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activities":[]}`, rec.Body.String())
}

func TestLeaderboard(t *testing.T) {
	ledger := &fakeLedger{board: []*model.LeaderboardEntry{
		{UserID: 2, Username: "bob", Points: 40, TotalPoints: 90},
		{UserID: 1, Username: "alice", Points: 10, TotalPoints: 60},
	}}

	rec, body := do(t, newTestRouter(ledger, nil), http.MethodGet, "/api/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ledger.lastLimit)
	rows, ok := body["leaderboard"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0].(map[string]any)["username"])

	ledger.boardErr = errors.New("boom")
	rec, _ = do(t, newTestRouter(ledger, nil), http.MethodGet, "/api/leaderboard", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWithdraw(t *testing.T) {
	id := uuid.New()

	t.Run("granted", func(t *testing.T) {
		ledger := &fakeLedger{withdraw: service.WithdrawalResult{
			Outcome: service.Granted, WithdrawalID: id, Amount: 20, RemainingBalance: 10,
		}}
		rec, body := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/withdraw/1",
			`{"amount":20,"details":{"wallet":"EQxyz"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, id.String(), body["withdrawal_id"])
		assert.EqualValues(t, 10, body["remaining_points"])
		assert.EqualValues(t, 20, ledger.withdrawAmount)
		assert.Equal(t, map[string]any{"wallet": "EQxyz"}, ledger.withdrawDetail)
	})

	t.Run("insufficient", func(t *testing.T) {
		ledger := &fakeLedger{withdraw: service.WithdrawalResult{
			Outcome: service.InsufficientBalance, RemainingBalance: 30,
		}}
		rec, body := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/withdraw/1", `{"amount":50}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["success"])
		assert.EqualValues(t, 30, body["remaining_points"])
	})

	t.Run("unknown user", func(t *testing.T) {
		ledger := &fakeLedger{withdraw: service.WithdrawalResult{Outcome: service.NotFound}}
		rec, _ := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/withdraw/1", `{"amount":5}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	for _, body := range []string{`{"amount":0}`, `{"amount":-5}`, `{"amount":1.5}`, `{"amount":"10"}`, `not json`} {
		t.Run("rejects "+body, func(t *testing.T) {
			ledger := &fakeLedger{}
			rec, _ := do(t, newTestRouter(ledger, nil), http.MethodPost, "/api/withdraw/1", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, ledger.withdrawAmount)
		})
	}
}

func TestWithdrawals(t *testing.T) {
	id := uuid.New()
	ledger := &fakeLedger{withdrawals: []*model.WithdrawalRequest{
		{ID: id, UserID: 1, Amount: 20, Details: map[string]any{"wallet": "EQxyz"}, CreatedAt: time.Unix(0, 0).UTC()},
	}}
	router := newTestRouter(ledger, nil)

	rec, body := do(t, router, http.MethodGet, "/api/withdrawals/1?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ledger.lastLimit)
	items, ok := body["withdrawals"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, id.String(), item["id"])
	assert.EqualValues(t, 20, item["amount"])

	ledger.withdrawals = nil
	rec, _ = do(t, router, http.MethodGet, "/api/withdrawals/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"withdrawals":[]}`, rec.Body.String())

	ledger.withdrawalsErr = errors.New("boom")
	rec, _ = do(t, router, http.MethodGet, "/api/withdrawals/1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestRouter(&fakeLedger{}, fakeHealth{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, body = do(t, newTestRouter(&fakeLedger{}, fakeHealth{err: errors.New("down")}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(config.APIConfig{AllowedOrigins: []string{"https://app.example.com"}}, NewHandler(&fakeLedger{}, nil, nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/pkg/cache"
	"points-ledger-bot/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 10
)

// Ledger is the subset of the ledger service the API calls.
type Ledger interface {
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
	ClaimDaily(ctx context.Context, userID int64) (service.GrantResult, error)
	VisitSocialChannel(ctx context.Context, userID int64, channel string) (service.GrantResult, error)
	ListActivities(ctx context.Context, userID int64, limit int) ([]*model.Activity, error)
	ListWithdrawals(ctx context.Context, userID int64, limit int) ([]*model.WithdrawalRequest, error)
	Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
	RequestWithdrawal(ctx context.Context, userID int64, amount int64, details map[string]any) (service.WithdrawalResult, error)
}

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the web app endpoints.
type Handler struct {
	ledger      Ledger
	leaderboard *cache.LeaderboardCache
	health      HealthChecker
	validate    *validator.Validate
}

// NewHandler creates a new Handler. leaderboard and health may be nil.
func NewHandler(ledger Ledger, leaderboard *cache.LeaderboardCache, health HealthChecker) *Handler {
	return &Handler{
		ledger:      ledger,
		leaderboard: leaderboard,
		health:      health,
		validate:    validator.New(),
	}
}

type socialVisitRequest struct {
	SocialType string `json:"social_type" validate:"required"`
}

type withdrawRequest struct {
	Amount  int64          `json:"amount" validate:"required,gt=0"`
	Details map[string]any `json:"details"`
}

type limitQuery struct {
	Limit int `validate:"min=1,max=100"`
}

type userResponse struct {
	UserID         int64             `json:"user_id"`
	Username       string            `json:"username"`
	FullName       string            `json:"full_name"`
	Points         int64             `json:"points"`
	TotalPoints    int64             `json:"total_points"`
	LastClaimTime  *time.Time        `json:"last_claim_time"`
	ReferralsCount int               `json:"referrals_count"`
	CanClaim       bool              `json:"can_claim"`
	NextClaimTime  int64             `json:"next_claim_time"`
	VisitedSocials []string          `json:"visited_socials"`
	SocialLinks    map[string]string `json:"social_links"`
	Channels       []model.Channel   `json:"channels"`
}

type grantResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	Points           int64  `json:"points,omitempty"`
	TotalPoints      int64  `json:"total_points,omitempty"`
	PointsAdded      int64  `json:"points_added,omitempty"`
	SecondsRemaining int64  `json:"seconds_remaining,omitempty"`
}

type withdrawResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	WithdrawalID    string `json:"withdrawal_id,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	RemainingPoints int64  `json:"remaining_points"`
}

// userID parses the {id} path parameter, writing a 400 on failure.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", nil)
		return 0, false
	}
	return id, true
}

// limit parses the optional ?limit= query parameter, writing a 400 on failure.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	q := limitQuery{Limit: defaultLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", nil)
			return 0, false
		}
		q.Limit = n
	}
	if err := h.validate.Struct(&q); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return 0, false
	}
	return q.Limit, true
}

// decode reads a single JSON object into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Request body must only contain a single JSON object", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// GetUser handles GET /api/user/{id}. It never claims.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	profile, err := h.ledger.Profile(r.Context(), id)
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	if err != nil {
		writeInternal(w, r, err, "Failed to load user profile")
		return
	}

	links := make(map[string]string, len(profile.Channels))
	for _, ch := range profile.Channels {
		links[ch.ID] = ch.URL
	}
	visited := profile.VisitedChannels
	if visited == nil {
		visited = []string{}
	}

	writeJSON(w, http.StatusOK, userResponse{
		UserID:         profile.User.UserID,
		Username:       profile.User.Username,
		FullName:       profile.User.DisplayName(),
		Points:         profile.User.Points,
		TotalPoints:    profile.User.TotalPoints,
		LastClaimTime:  profile.User.LastClaimTime,
		ReferralsCount: profile.ReferralCount,
		CanClaim:       profile.Eligibility.Eligible(),
		NextClaimTime:  profile.Eligibility.SecondsRemaining(),
		VisitedSocials: visited,
		SocialLinks:    links,
		Channels:       profile.Channels,
	})
}

// DailyClaim handles POST /api/daily_claim/{id}.
func (h *Handler) DailyClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.ClaimDaily(r.Context(), id)
	if err != nil {
		writeInternal(w, r, err, "Daily claim failed")
		return
	}

	switch res.Outcome {
	case service.Granted:
		writeJSON(w, http.StatusOK, granted(res.Grant, fmt.Sprintf("%d points added!", res.Grant.PointsAdded)))
	case service.Blocked:
		writeJSON(w, http.StatusOK, grantResponse{
			Success:          false,
			Message:          "You cannot claim yet",
			SecondsRemaining: res.SecondsRemaining(),
		})
	case service.NotFound:
		writeError(w, http.StatusNotFound, "User not found", nil)
	default:
		writeInternal(w, r, fmt.Errorf("unexpected outcome %s", res.Outcome), "Daily claim failed")
	}
}

// SocialVisit handles POST /api/social_visit/{id}.
func (h *Handler) SocialVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req socialVisitRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.ledger.VisitSocialChannel(r.Context(), id, req.SocialType)
	if err != nil {
		writeInternal(w, r, err, "Social visit failed")
		return
	}

	switch res.Outcome {
	case service.Granted:
		writeJSON(w, http.StatusOK, granted(res.Grant,
			fmt.Sprintf("%d points added for visiting %s!", res.Grant.PointsAdded, req.SocialType)))
	case service.AlreadyDone:
		writeJSON(w, http.StatusOK, grantResponse{Success: false, Message: "Channel already visited"})
	case service.InvalidInput:
		writeError(w, http.StatusBadRequest, "Invalid social channel", nil)
	case service.NotFound:
		writeError(w, http.StatusNotFound, "User not found", nil)
	default:
		writeInternal(w, r, fmt.Errorf("unexpected outcome %s", res.Outcome), "Social visit failed")
	}
}

// Activities handles GET /api/activities/{id}?limit=.
func (h *Handler) Activities(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	activities, err := h.ledger.ListActivities(r.Context(), id, limit)
	if err != nil {
		writeInternal(w, r, err, "Failed to list activities")
		return
	}
	if activities == nil {
		activities = []*model.Activity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

// Withdrawals handles GET /api/withdrawals/{id}?limit=.
func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	requests, err := h.ledger.ListWithdrawals(r.Context(), id, limit)
	if err != nil {
		writeInternal(w, r, err, "Failed to list withdrawals")
		return
	}
	if requests == nil {
		requests = []*model.WithdrawalRequest{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": requests})
}

// Leaderboard handles GET /api/leaderboard?limit=. Served from the Redis
// snapshot of the current generation when one is available; every committed
// change starts a new generation.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	entries, err := h.leaderboard.Fetch(r.Context(), limit, h.ledger)
	if err != nil {
		writeInternal(w, r, err, "Failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []*model.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// Withdraw handles POST /api/withdraw/{id}.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.ledger.RequestWithdrawal(r.Context(), id, req.Amount, req.Details)
	if err != nil {
		writeInternal(w, r, err, "Withdrawal failed")
		return
	}

	switch res.Outcome {
	case service.Granted:
		writeJSON(w, http.StatusOK, withdrawResponse{
			Success:         true,
			Message:         "Withdrawal request submitted! ID: " + res.WithdrawalID.String(),
			WithdrawalID:    res.WithdrawalID.String(),
			Amount:          res.Amount,
			RemainingPoints: res.RemainingBalance,
		})
	case service.InsufficientBalance:
		writeJSON(w, http.StatusOK, withdrawResponse{
			Success:         false,
			Message:         "Insufficient balance",
			RemainingPoints: res.RemainingBalance,
		})
	case service.InvalidInput:
		writeError(w, http.StatusBadRequest, "Invalid amount", nil)
	case service.NotFound:
		writeError(w, http.StatusNotFound, "User not found", nil)
	default:
		writeInternal(w, r, fmt.Errorf("unexpected outcome %s", res.Outcome), "Withdrawal failed")
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func granted(g service.Grant, message string) grantResponse {
	return grantResponse{
		Success:     true,
		Message:     message,
		Points:      g.Points,
		TotalPoints: g.TotalPoints,
		PointsAdded: g.PointsAdded,
	}
}

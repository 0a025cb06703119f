package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/repository"
)

// ErrUserNotFound is returned by plain reads of a missing user.
var ErrUserNotFound = repository.ErrUserNotFound

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Rules holds the reward amounts, the daily cooldown and the channel catalogue.
type Rules struct {
	DailyPoints    int64
	ReferralPoints int64
	SocialPoints   int64
	Cooldown       time.Duration
	Channels       []model.Channel
}

// DB is what the ledger needs from the connection pool: plain queries for
// reads and transactions for grants. *pgxpool.Pool satisfies it.
type DB interface {
	repository.Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// RankingInvalidator is told after every committed change that can alter the
// leaderboard, so no copy of the ranking outlives the change.
type RankingInvalidator interface {
	Invalidate(ctx context.Context) error
}

// LedgerService owns every balance change. Each grant runs as one READ
// COMMITTED transaction that re-checks eligibility at the point of mutation,
// updates the balances, appends the activity and, for one-time actions,
// inserts the uniqueness marker. Concurrent callers on the same user are
// serialized by row locks and unique constraints in PostgreSQL.
type LedgerService struct {
	db          DB
	users       *repository.UserRepository
	activities  *repository.ActivityRepository
	referrals   *repository.ReferralRepository
	visits      *repository.SocialVisitRepository
	withdrawals *repository.WithdrawalRepository
	rules       Rules
	channels    map[string]model.Channel
	ranking     RankingInvalidator
	now         func() time.Time
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(db DB, rules Rules) *LedgerService {
	channels := make(map[string]model.Channel, len(rules.Channels))
	for _, ch := range rules.Channels {
		channels[ch.ID] = ch
	}

	return &LedgerService{
		db:          db,
		users:       repository.NewUserRepository(db),
		activities:  repository.NewActivityRepository(db),
		referrals:   repository.NewReferralRepository(db),
		visits:      repository.NewSocialVisitRepository(db),
		withdrawals: repository.NewWithdrawalRepository(db),
		rules:       rules,
		channels:    channels,
		now:         time.Now,
	}
}

// Rules returns the configured reward rules.
func (s *LedgerService) Rules() Rules {
	return s.rules
}

// Channels returns the configured social channels in display order.
func (s *LedgerService) Channels() []model.Channel {
	return s.rules.Channels
}

// Channel looks up a configured social channel.
func (s *LedgerService) Channel(id string) (model.Channel, bool) {
	ch, ok := s.channels[id]
	return ch, ok
}

// SetRankingInvalidator registers the leaderboard cache to be invalidated
// after committed changes. Passing nil disables it.
func (s *LedgerService) SetRankingInvalidator(inv RankingInvalidator) {
	s.ranking = inv
}

// rankingChanged runs after commit. A failure is logged; the change itself
// is already durable.
func (s *LedgerService) rankingChanged(ctx context.Context) {
	if s.ranking == nil {
		return
	}
	if err := s.ranking.Invalidate(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

func (s *LedgerService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// RegisterUser creates the user on first contact and refreshes the display
// name afterwards. Balances and the last claim time are never touched, so it
// is safe to call on every interaction.
func (s *LedgerService) RegisterUser(ctx context.Context, userID int64, username string, fullName *string) (*model.User, error) {
	if fullName != nil && *fullName == "" {
		fullName = nil
	}

	user, changed, err := s.users.Upsert(ctx, userID, username, fullName)
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	if changed {
		s.rankingChanged(ctx)
	}
	return user, nil
}

// GetUser reads a user. Returns ErrUserNotFound if the user does not exist.
func (s *LedgerService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// CheckDailyEligibility reports whether a daily claim would be granted now.
// It does not reserve anything; ClaimDaily checks again under a row lock.
func (s *LedgerService) CheckDailyEligibility(ctx context.Context, userID int64) (Eligibility, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return Eligibility{Outcome: NotFound}, nil
	}
	if err != nil {
		return Eligibility{}, fmt.Errorf("check daily eligibility: %w", err)
	}

	if ok, remaining := dailyEligibility(user.LastClaimTime, s.now(), s.rules.Cooldown); !ok {
		return Eligibility{Outcome: Blocked, Remaining: remaining}, nil
	}
	return Eligibility{Outcome: Granted}, nil
}

// ClaimDaily grants the daily bonus if the cooldown has elapsed.
func (s *LedgerService) ClaimDaily(ctx context.Context, userID int64) (GrantResult, error) {
	var result GrantResult

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		// The row lock makes a concurrent claim wait here and then see our
		// last_claim_time, so only one of them passes the check below.
		user, err := users.GetForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			result = GrantResult{Outcome: NotFound}
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if ok, remaining := dailyEligibility(user.LastClaimTime, now, s.rules.Cooldown); !ok {
			result = GrantResult{Outcome: Blocked, Remaining: remaining}
			return nil
		}

		updated, err := users.AddDailyClaim(ctx, userID, s.rules.DailyPoints, now)
		if err != nil {
			return err
		}

		detail := model.ClaimDetail{ClaimTime: now}
		if _, err := s.activities.WithTx(tx).Append(ctx, userID, model.KindDailyClaim, s.rules.DailyPoints, detail, now); err != nil {
			return err
		}

		result = granted(updated, s.rules.DailyPoints)
		return nil
	})
	if err != nil {
		return GrantResult{}, fmt.Errorf("claim daily: %w", err)
	}

	if result.Outcome == Granted {
		s.rankingChanged(ctx)
	}
	logOutcome(userID, model.KindDailyClaim, result)
	return result, nil
}

// GrantReferral rewards the referrer the first time the (referrer, referred)
// pair is recorded. Both users must already exist.
func (s *LedgerService) GrantReferral(ctx context.Context, referrerID, referredID int64) (GrantResult, error) {
	if referrerID == referredID {
		return GrantResult{Outcome: InvalidInput, Reason: ErrSelfReferral}, nil
	}

	var result GrantResult

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		count, err := users.CountExisting(ctx, referrerID, referredID)
		if err != nil {
			return err
		}
		if count < 2 {
			result = GrantResult{Outcome: NotFound}
			return nil
		}

		inserted, err := s.referrals.WithTx(tx).Insert(ctx, referrerID, referredID)
		if err != nil {
			return err
		}
		if inserted == repository.AlreadyExists {
			result = GrantResult{Outcome: AlreadyDone}
			return nil
		}

		updated, err := users.AddPoints(ctx, referrerID, s.rules.ReferralPoints)
		if err != nil {
			return err
		}

		detail := model.ReferralDetail{ReferredID: referredID}
		if _, err := s.activities.WithTx(tx).Append(ctx, referrerID, model.KindReferral, s.rules.ReferralPoints, detail, s.now()); err != nil {
			return err
		}

		result = granted(updated, s.rules.ReferralPoints)
		return nil
	})
	if err != nil {
		return GrantResult{}, fmt.Errorf("grant referral: %w", err)
	}

	if result.Outcome == Granted {
		s.rankingChanged(ctx)
	}
	logOutcome(referrerID, model.KindReferral, result)
	return result, nil
}

// VisitSocialChannel grants the one-time bonus for a configured channel.
func (s *LedgerService) VisitSocialChannel(ctx context.Context, userID int64, channel string) (GrantResult, error) {
	ch, ok := s.channels[channel]
	if !ok {
		return GrantResult{Outcome: InvalidInput, Reason: ErrUnknownChannel}, nil
	}

	kind := model.SocialKind(ch.ID)
	var result GrantResult

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		if _, err := users.GetByID(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				result = GrantResult{Outcome: NotFound}
				return nil
			}
			return err
		}

		inserted, err := s.visits.WithTx(tx).Insert(ctx, userID, ch.ID)
		if err != nil {
			return err
		}
		if inserted == repository.AlreadyExists {
			result = GrantResult{Outcome: AlreadyDone}
			return nil
		}

		updated, err := users.AddPoints(ctx, userID, s.rules.SocialPoints)
		if err != nil {
			return err
		}

		detail := model.SocialDetail{Channel: ch.ID, URL: ch.URL}
		if _, err := s.activities.WithTx(tx).Append(ctx, userID, kind, s.rules.SocialPoints, detail, s.now()); err != nil {
			return err
		}

		result = granted(updated, s.rules.SocialPoints)
		return nil
	})
	if err != nil {
		return GrantResult{}, fmt.Errorf("visit social channel: %w", err)
	}

	if result.Outcome == Granted {
		s.rankingChanged(ctx)
	}
	logOutcome(userID, kind, result)
	return result, nil
}

// RequestWithdrawal debits the balance and records a withdrawal request.
// The lifetime total is not reduced.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userID int64, amount int64, details map[string]any) (WithdrawalResult, error) {
	if amount <= 0 {
		return WithdrawalResult{Outcome: InvalidInput, Reason: ErrInvalidAmount}, nil
	}

	var result WithdrawalResult

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		user, err := users.GetForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			result = WithdrawalResult{Outcome: NotFound}
			return nil
		}
		if err != nil {
			return err
		}

		if user.Points < amount {
			result = WithdrawalResult{Outcome: InsufficientBalance, RemainingBalance: user.Points}
			return nil
		}

		updated, err := users.Debit(ctx, userID, amount)
		if err != nil {
			return err
		}

		now := s.now()
		detail := model.WithdrawalDetail{Fields: details}
		if _, err := s.activities.WithTx(tx).Append(ctx, userID, model.KindWithdrawal, -amount, detail, now); err != nil {
			return err
		}

		req, err := s.withdrawals.WithTx(tx).Create(ctx, userID, amount, details, now)
		if err != nil {
			return err
		}

		result = WithdrawalResult{
			Outcome:          Granted,
			WithdrawalID:     req.ID,
			Amount:           amount,
			RemainingBalance: updated.Points,
		}
		return nil
	})
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("request withdrawal: %w", err)
	}

	if result.Outcome == Granted {
		s.rankingChanged(ctx)
		log.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("withdrawal_id", result.WithdrawalID.String()).
			Msg("Withdrawal requested")
	}
	return result, nil
}

// ListActivities returns a user's most recent activities, newest first.
func (s *LedgerService) ListActivities(ctx context.Context, userID int64, limit int) ([]*model.Activity, error) {
	activities, err := s.activities.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// Leaderboard returns users ordered by balance, ties by ascending ID.
func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	entries, err := s.users.GetLeaderboard(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

// ListWithdrawals returns a user's withdrawal requests, newest first.
func (s *LedgerService) ListWithdrawals(ctx context.Context, userID int64, limit int) ([]*model.WithdrawalRequest, error) {
	requests, err := s.withdrawals.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return requests, nil
}

// ReferralCount returns how many users the given user has referred.
func (s *LedgerService) ReferralCount(ctx context.Context, userID int64) (int, error) {
	return s.referrals.CountByReferrer(ctx, userID)
}

// VisitedChannels returns the channels the user was already rewarded for.
func (s *LedgerService) VisitedChannels(ctx context.Context, userID int64) ([]string, error) {
	return s.visits.ListChannels(ctx, userID)
}

// Profile aggregates what the web app shows for a user.
type Profile struct {
	User            *model.User
	ReferralCount   int
	Eligibility     Eligibility
	VisitedChannels []string
	Channels        []model.Channel
}

// Profile reads everything the web app needs for one user. It never claims.
// Returns ErrUserNotFound if the user does not exist.
func (s *LedgerService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	referrals, err := s.referrals.CountByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	visited, err := s.visits.ListChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	eligibility := Eligibility{Outcome: Granted}
	if ok, remaining := dailyEligibility(user.LastClaimTime, s.now(), s.rules.Cooldown); !ok {
		eligibility = Eligibility{Outcome: Blocked, Remaining: remaining}
	}

	return &Profile{
		User:            user,
		ReferralCount:   referrals,
		Eligibility:     eligibility,
		VisitedChannels: visited,
		Channels:        s.rules.Channels,
	}, nil
}

func granted(user *model.User, added int64) GrantResult {
	return GrantResult{
		Outcome: Granted,
		Grant: Grant{
			Points:      user.Points,
			TotalPoints: user.TotalPoints,
			PointsAdded: added,
		},
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func logOutcome(userID int64, kind model.ActivityKind, result GrantResult) {
	if result.Outcome != Granted {
		log.Debug().
			Int64("user_id", userID).
			Str("activity", string(kind)).
			Stringer("outcome", result.Outcome).
			Msg("Grant not applied")
		return
	}
	log.Info().
		Int64("user_id", userID).
		Str("activity", string(kind)).
		Int64("points_added", result.Grant.PointsAdded).
		Int64("points", result.Grant.Points).
		Msg("Points granted")
}

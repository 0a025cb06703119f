// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/service"
)

const (
	historyLimit     = 10
	leaderboardLimit = 10
	withdrawalsLimit = 10
)

// Ledger is what the bot handlers need from the ledger service.
type Ledger interface {
	Rules() service.Rules
	Channels() []model.Channel
	Channel(id string) (model.Channel, bool)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	ClaimDaily(ctx context.Context, userID int64) (service.GrantResult, error)
	GrantReferral(ctx context.Context, referrerID, referredID int64) (service.GrantResult, error)
	VisitSocialChannel(ctx context.Context, userID int64, channel string) (service.GrantResult, error)
	ReferralCount(ctx context.Context, userID int64) (int, error)
	VisitedChannels(ctx context.Context, userID int64) ([]string, error)
	ListActivities(ctx context.Context, userID int64, limit int) ([]*model.Activity, error)
	ListWithdrawals(ctx context.Context, userID int64, limit int) ([]*model.WithdrawalRequest, error)
	Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
}

// AccountHandler handles balance, daily claim, referral and ranking commands.
type AccountHandler struct {
	ledger    Ledger
	webAppURL string
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger Ledger, webAppURL string) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		webAppURL: webAppURL,
	}
}

// HandleStart handles /start [referrerID].
// The sender is already registered by the middleware. A numeric payload that
// names another user grants that user the referral bonus once, and the new
// user is told about it. Repeats are silent.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if payload := c.Message().Payload; payload != "" {
		if h.applyReferral(ctx, payload, sender.ID) == service.Granted {
			if err := c.Send(FormatReferralJoined(h.ledger.Rules().ReferralPoints)); err != nil {
				return err
			}
		}
	}

	username, fullName := SenderNames(sender)
	name := username
	if fullName != nil {
		name = *fullName
	}

	return c.Send(
		"🎉 Welcome "+name+"!\n\n"+
			"Earn points with daily claims, referrals and tasks.\n\n"+
			"Use /help to see the available commands.",
		BuildStartMenu(h.webAppURL, sender.ID),
	)
}

// applyReferral grants the referral bonus for a /start payload and returns
// the outcome. A payload that is not a user ID is InvalidInput; an
// operational failure is logged and reported as NotFound so nothing is
// announced.
func (h *AccountHandler) applyReferral(ctx context.Context, payload string, referredID int64) service.Outcome {
	referrerID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		log.Debug().Str("payload", payload).Msg("Ignoring non-numeric start payload")
		return service.InvalidInput
	}

	res, err := h.ledger.GrantReferral(ctx, referrerID, referredID)
	if err != nil {
		log.Error().Err(err).
			Int64("referrer_id", referrerID).
			Int64("referred_id", referredID).
			Msg("Failed to grant referral")
		return service.NotFound
	}
	if res.Outcome != service.Granted {
		log.Debug().
			Int64("referrer_id", referrerID).
			Int64("referred_id", referredID).
			Stringer("outcome", res.Outcome).
			Msg("Referral not granted")
	}
	return res.Outcome
}

// HandleDaily handles /daily_claim, /daily and the daily claim button.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	res, err := h.ledger.ClaimDaily(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Daily claim failed")
		return c.Send("❌ Claim failed, please try again later.")
	}

	return c.Send(FormatClaim(res))
}

// HandleBalance handles /balance.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.ledger.GetUser(ctx, sender.ID)
	if errors.Is(err, service.ErrUserNotFound) {
		return c.Send("⚠️ Account not found. Please use /start first.")
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to get user")
		return c.Send("❌ Failed to load your balance, please try again later.")
	}

	referrals, err := h.ledger.ReferralCount(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to count referrals")
		return c.Send("❌ Failed to load your balance, please try again later.")
	}

	return c.Send(FormatBalance(user, referrals))
}

// HandleReferral handles /referral and the invite button.
func (h *AccountHandler) HandleReferral(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	link := ReferralLink(c.Bot().Me.Username, sender.ID)
	text := FormatReferral(link, h.ledger.Rules().ReferralPoints)

	if webLink := WebAppLink(h.webAppURL, sender.ID); webLink != "" {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("📱 Open web app", webLink)))
		return c.Send(text, markup)
	}
	return c.Send(text)
}

// HandleHistory handles /history.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	activities, err := h.ledger.ListActivities(ctx, sender.ID, historyLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to list activities")
		return c.Send("❌ Failed to load your history, please try again later.")
	}

	return c.Send(FormatHistory(activities, h.ledger.Channels()))
}

// HandleWithdrawals handles /withdrawals.
func (h *AccountHandler) HandleWithdrawals(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	requests, err := h.ledger.ListWithdrawals(ctx, sender.ID, withdrawalsLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to list withdrawals")
		return c.Send("❌ Failed to load your withdrawals, please try again later.")
	}

	return c.Send(FormatWithdrawals(requests))
}

// HandleLeaderboard handles /leaderboard.
func (h *AccountHandler) HandleLeaderboard(c tele.Context) error {
	ctx := context.Background()

	entries, err := h.ledger.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		return c.Send("❌ Failed to load the leaderboard, please try again later.")
	}

	return c.Send(FormatLeaderboard(entries))
}

// HandleHelp handles /help.
func (h *AccountHandler) HandleHelp(c tele.Context) error {
	return c.Send(FormatHelp())
}

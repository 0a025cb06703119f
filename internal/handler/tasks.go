package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/service"
)

// TasksHandler handles the one-time social channel tasks.
type TasksHandler struct {
	ledger Ledger
}

// NewTasksHandler creates a new TasksHandler.
func NewTasksHandler(ledger Ledger) *TasksHandler {
	return &TasksHandler{ledger: ledger}
}

// HandleTasks handles /tasks. Visited channels are marked as done.
func (h *TasksHandler) HandleTasks(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	visited, err := h.ledger.VisitedChannels(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to list visited channels")
		return c.Send("❌ Failed to load tasks, please try again later.")
	}

	return c.Send(
		fmt.Sprintf("📋 Tasks\n\nVisit our channels to earn %d points each (once per channel):",
			h.ledger.Rules().SocialPoints),
		BuildTasksPanel(h.ledger.Channels(), visited),
	)
}

// HandleSocialVisit grants the bonus for a social:<channel> button.
func (h *TasksHandler) HandleSocialVisit(c tele.Context, channel string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	res, err := h.ledger.VisitSocialChannel(ctx, sender.ID, channel)
	if err != nil {
		log.Error().Err(err).
			Int64("user_id", sender.ID).
			Str("channel", channel).
			Msg("Social visit failed")
		return c.Send("❌ Something went wrong, please try again later.")
	}

	switch res.Outcome {
	case service.Granted:
		name := channel
		if ch, ok := h.ledger.Channel(channel); ok {
			name = ch.Name
		}
		return c.Send(fmt.Sprintf("✅ Thanks for visiting %s!\n\n%s", name, FormatGrant(res.Grant)))
	case service.AlreadyDone:
		return c.Send("✅ You already visited this channel.")
	case service.InvalidInput:
		return c.Send("⚠️ Unknown channel.")
	case service.NotFound:
		return c.Send("⚠️ Account not found. Please use /start first.")
	default:
		return c.Send("❌ Something went wrong, please try again later.")
	}
}

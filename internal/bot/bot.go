// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/config"
	"points-ledger-bot/internal/handler"
	"points-ledger-bot/internal/pkg/lock"
	"points-ledger-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	ledger   *service.LedgerService
	userLock *lock.UserLock

	// Handlers
	accountHandler *handler.AccountHandler
	tasksHandler   *handler.TasksHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Ledger   *service.LedgerService
	UserLock *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			evt := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				evt = evt.Int64("user_id", c.Sender().ID)
			}
			evt.Msg("Bot handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	userLock := deps.UserLock
	if userLock == nil {
		userLock = lock.NewUserLock()
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		ledger:   deps.Ledger,
		userLock: userLock,
	}

	b.accountHandler = handler.NewAccountHandler(deps.Ledger, deps.Config.Bot.WebAppURL)
	b.tasksHandler = handler.NewTasksHandler(deps.Ledger)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware. Order matters: recovery wraps
// everything, and registration runs only for requests the guard admitted.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(InFlightMiddleware(b.userLock))
	b.bot.Use(RegisterMiddleware(b.ledger))
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/daily_claim", b.accountHandler.HandleDaily)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/referral", b.accountHandler.HandleReferral)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)
	b.bot.Handle("/withdrawals", b.accountHandler.HandleWithdrawals)
	b.bot.Handle("/leaderboard", b.accountHandler.HandleLeaderboard)
	b.bot.Handle("/help", b.accountHandler.HandleHelp)
	b.bot.Handle("/tasks", b.tasksHandler.HandleTasks)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes inline button presses.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}
	_ = c.Respond()

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	switch data {
	case handler.CallbackDailyClaim:
		return b.accountHandler.HandleDaily(c)
	case handler.CallbackReferral:
		return b.accountHandler.HandleReferral(c)
	}

	if channel, ok := handler.SocialCallbackChannel(data); ok {
		return b.tasksHandler.HandleSocialVisit(c, channel)
	}

	log.Debug().Str("data", data).Msg("Unknown callback")
	return nil
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

package bot

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/handler"
	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/pkg/lock"
)

// Registrar creates or refreshes the account of whoever is talking to the bot.
type Registrar interface {
	RegisterUser(ctx context.Context, userID int64, username string, fullName *string) (*model.User, error)
}

// LoggingMiddleware creates a middleware that logs all incoming updates.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			if cb := c.Callback(); cb != nil {
				logEvent = logEvent.Str("callback", cb.Data)
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("Recovered from panic in handler")
					err = c.Send("❌ Internal error, please try again later.")
				}
			}()
			return next(c)
		}
	}
}

// InFlightMiddleware drops an update when the same user already has one
// being handled, so a double tap on a button does not queue a second call.
// The user is told to wait instead.
func InFlightMiddleware(userLock *lock.UserLock) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			err := userLock.Do(sender.ID, func() error { return next(c) })
			if !errors.Is(err, lock.ErrBusy) {
				return err
			}

			log.Debug().
				Int64("user_id", sender.ID).
				Int("in_flight", userLock.Len()).
				Msg("Dropping update, request in flight")
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: "⏳ Please wait..."})
			}
			return c.Send("⏳ Please wait, your previous request is still being processed.")
		}
	}
}

// RegisterMiddleware registers the sender before every handler runs.
func RegisterMiddleware(ledger Registrar) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || sender.IsBot {
				return nil
			}

			username, fullName := handler.SenderNames(sender)
			if _, err := ledger.RegisterUser(context.Background(), sender.ID, username, fullName); err != nil {
				log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to register user")
				return c.Send("❌ Something went wrong, please try again later.")
			}

			return next(c)
		}
	}
}

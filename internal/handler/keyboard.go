package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/model"
)

// Callback data
const (
	CallbackDailyClaim = "daily_claim"
	CallbackReferral   = "referral"
	CallbackSocial     = "social:" // social:telegram
)

// SocialCallbackChannel extracts the channel from social callback data.
func SocialCallbackChannel(data string) (string, bool) {
	if !strings.HasPrefix(data, CallbackSocial) {
		return "", false
	}
	channel := strings.TrimPrefix(data, CallbackSocial)
	return channel, channel != ""
}

// WebAppLink returns the web app URL for a user, or "" if none is configured.
func WebAppLink(base string, userID int64) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%suser_id=%d", base, sep, userID)
}

// BuildStartMenu creates the menu shown after /start.
func BuildStartMenu(webAppURL string, userID int64) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	if link := WebAppLink(webAppURL, userID); link != "" {
		rows = append(rows, markup.Row(markup.URL("📱 Open web app", link)))
	}
	rows = append(rows,
		markup.Row(markup.Data("💰 Claim daily points", CallbackDailyClaim)),
		markup.Row(markup.Data("👥 Invite friends", CallbackReferral)),
	)

	markup.Inline(rows...)
	return markup
}

// BuildTasksPanel creates one button per channel. Channels not yet visited
// open the link and carry the social callback; visited ones are marked done.
func BuildTasksPanel(channels []model.Channel, visited []string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	done := make(map[string]bool, len(visited))
	for _, ch := range visited {
		done[ch] = true
	}

	var rows []tele.Row
	for _, ch := range channels {
		emoji := ch.Emoji
		if emoji == "" {
			emoji = "🔗"
		}

		if done[ch.ID] {
			rows = append(rows, markup.Row(markup.Data(
				fmt.Sprintf("✅ %s %s", emoji, ch.Name),
				CallbackSocial+ch.ID,
			)))
			continue
		}

		rows = append(rows, markup.Row(
			markup.URL(fmt.Sprintf("%s Open %s", emoji, ch.Name), ch.URL),
			markup.Data("🎁 Claim", CallbackSocial+ch.ID),
		))
	}

	markup.Inline(rows...)
	return markup
}

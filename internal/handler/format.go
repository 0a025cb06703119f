package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/service"
)

const separator = "━━━━━━━━━━━━━━━"

var medals = []string{"🥇", "🥈", "🥉"}

// SenderNames returns the username (falling back to the first name) and the
// full name of a Telegram user. The full name is nil when Telegram sent none.
func SenderNames(u *tele.User) (string, *string) {
	username := u.Username
	if username == "" {
		username = u.FirstName
	}

	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return username, nil
	}
	return username, &full
}

// FormatWait renders a remaining cooldown as "Xh Ym", never "0m".
func FormatWait(seconds int64) string {
	if seconds < 60 {
		return "less than a minute"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// FormatGrant renders a granted reward.
func FormatGrant(g service.Grant) string {
	return fmt.Sprintf(
		"🎁 +%d points added!\n"+
			"💰 Balance: %d points\n"+
			"📊 Total earned: %d points",
		g.PointsAdded, g.Points, g.TotalPoints,
	)
}

// FormatClaim renders the reply to a daily claim.
func FormatClaim(res service.GrantResult) string {
	switch res.Outcome {
	case service.Granted:
		return FormatGrant(res.Grant)
	case service.Blocked:
		return fmt.Sprintf("⏳ You cannot claim yet. Please wait %s.", FormatWait(res.SecondsRemaining()))
	case service.NotFound:
		return "⚠️ Account not found. Please use /start first."
	default:
		return "❌ Claim failed, please try again later."
	}
}

// FormatBalance renders the /balance screen.
func FormatBalance(user *model.User, referrals int) string {
	return fmt.Sprintf(
		"💰 Balance: %d points\n"+
			"📊 Total earned: %d points\n"+
			"👥 Referrals: %d\n\n"+
			"Use /daily_claim to collect your daily points.",
		user.Points, user.TotalPoints, referrals,
	)
}

// ReferralLink builds the deep link that registers a referral on /start.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}

// FormatReferral renders the invitation text.
func FormatReferral(link string, reward int64) string {
	return fmt.Sprintf(
		"👥 Invite friends\n\n"+
			"Share this link. When a friend joins through it you get %d points!\n\n"+
			"%s",
		reward, link,
	)
}

// describeActivity returns a short label for an activity kind.
func describeActivity(kind model.ActivityKind, channels map[string]model.Channel) string {
	switch kind {
	case model.KindDailyClaim:
		return "Daily bonus"
	case model.KindReferral:
		return "Referral bonus"
	case model.KindWithdrawal:
		return "Withdrawal"
	case model.KindTask:
		return "Task completed"
	}
	if id, ok := kind.SocialChannel(); ok {
		if ch, found := channels[id]; found {
			return "Visited " + ch.Name
		}
		return "Visited " + id
	}
	return string(kind)
}

// FormatHistory renders recent activities, newest first.
func FormatHistory(activities []*model.Activity, channels []model.Channel) string {
	if len(activities) == 0 {
		return "📜 No activity yet."
	}

	byID := make(map[string]model.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	var sb strings.Builder
	sb.WriteString("📜 Recent activity\n")
	sb.WriteString(separator + "\n")
	for _, a := range activities {
		fmt.Fprintf(&sb, "%s  %+d  %s\n",
			a.CreatedAt.UTC().Format("2006-01-02 15:04"),
			a.Points,
			describeActivity(a.Kind, byID),
		)
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatLeaderboard renders the ranking with medals for the top three.
func FormatLeaderboard(entries []*model.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "📊 No ranking data yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 Leaderboard TOP %d\n", len(entries))
	sb.WriteString(separator + "\n")
	for i, e := range entries {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}

		name := e.Username
		if name == "" {
			name = fmt.Sprintf("User%d", e.UserID)
		}

		fmt.Fprintf(&sb, "%s %s: %d\n", rank, name, e.Points)
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatReferralJoined tells a new user that their invitation was credited.
func FormatReferralJoined(reward int64) string {
	return fmt.Sprintf("👥 You joined through a referral link! The user who invited you received %d points.", reward)
}

// FormatWithdrawals renders a user's withdrawal requests, newest first.
func FormatWithdrawals(requests []*model.WithdrawalRequest) string {
	if len(requests) == 0 {
		return "💸 No withdrawal requests yet."
	}

	var sb strings.Builder
	sb.WriteString("💸 Withdrawal requests\n")
	sb.WriteString(separator + "\n")
	for _, r := range requests {
		fmt.Fprintf(&sb, "%s  %d points  #%s\n",
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			r.Amount,
			r.ID.String()[:8],
		)
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatHelp lists the available commands.
func FormatHelp() string {
	return "📖 Commands\n" +
		separator + "\n" +
		"/start - Register and open the menu\n" +
		"/daily_claim - Collect your daily points\n" +
		"/balance - Show your points\n" +
		"/referral - Get your invitation link\n" +
		"/tasks - Visit channels for bonus points\n" +
		"/history - Show recent activity\n" +
		"/withdrawals - Show your withdrawal requests\n" +
		"/leaderboard - Show the top users\n" +
		"/help - Show this message"
}

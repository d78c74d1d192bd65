// Package membership decides whether a Telegram user has paid access, which is
// granted by being a member of the paid channel.
package membership

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	ReasonNotConfigured = "paid channel is not configured"
	ReasonNotMember     = "user is not a member of the paid channel"
	ReasonCheckFailed   = "membership check failed"
)

type Membership struct {
	IsPaid bool
	Reason string
}

type Checker interface {
	CheckMembership(ctx context.Context, telegramID int64) Membership
}

// ChatMemberGetter is the part of *tgbotapi.BotAPI the checker needs.
type ChatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

type TelegramChecker struct {
	bot     ChatMemberGetter
	channel string
}

// NewTelegramChecker checks membership of channel, given as a numeric chat id or @username.
// A nil bot or empty channel makes every check fail with ReasonNotConfigured.
func NewTelegramChecker(bot ChatMemberGetter, channel string) *TelegramChecker {
	return &TelegramChecker{
		bot:     bot,
		channel: strings.TrimSpace(channel),
	}
}

func (c *TelegramChecker) CheckMembership(ctx context.Context, telegramID int64) Membership {
	if c.bot == nil || c.channel == "" {
		return Membership{Reason: ReasonNotConfigured}
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: chatConfig(c.channel, telegramID),
	})
	if err != nil {
		zap.L().Warn("get chat member", zap.Error(err), zap.Int64("telegram_id", telegramID), zap.String("channel", c.channel))
		return Membership{Reason: ReasonCheckFailed}
	}

	if member.HasLeft() || member.WasKicked() || member.Status == "" {
		return Membership{Reason: ReasonNotMember}
	}

	return Membership{IsPaid: true}
}

func chatConfig(channel string, userID int64) tgbotapi.ChatConfigWithUser {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID}
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return tgbotapi.ChatConfigWithUser{SuperGroupUsername: channel, UserID: userID}
}

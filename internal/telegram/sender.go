package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/repository"
)

// SendLongMessage sends a potentially long message, splitting it into parts if needed.
// Falls back to plain text if Markdown parsing fails.
func SendLongMessage(ctx context.Context, b *bot.Bot, chatID int64, text string, threadID int) error {
	text = FixMarkdown(text)
	for _, part := range SplitMessage(text, config.MaxTelegramMessageLen) {
		params := &bot.SendMessageParams{
			ChatID:          chatID,
			Text:            part,
			ParseMode:       models.ParseModeMarkdownV1,
			MessageThreadID: threadID,
		}

		if _, err := b.SendMessage(ctx, params); err != nil {
			slog.Warn("markdown send failed, falling back to plain text", "chat_id", chatID, "error", err)
			params.ParseMode = ""
			if _, err := b.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

// Notifier delivers member notifications to the user's linked Telegram chat.
// Users without a linked chat are skipped.
type Notifier struct {
	bot      *bot.Bot
	channels repository.ChannelRepository
}

func NewNotifier(b *bot.Bot, channels repository.ChannelRepository) *Notifier {
	return &Notifier{bot: b, channels: channels}
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	chatID, err := n.channels.TelegramChatID(ctx, msg.ToUserID)
	if err != nil {
		return fmt.Errorf("look up chat: %w", err)
	}
	if chatID == 0 {
		return nil
	}
	return SendLongMessage(ctx, n.bot, chatID, FormatNotification(msg), 0)
}

func FormatNotification(msg domain.Notification) string {
	return fmt.Sprintf("*%s*\n\n%s", EscapeMarkdown(msg.Title), EscapeMarkdown(msg.Message))
}

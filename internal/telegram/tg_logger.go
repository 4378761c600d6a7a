package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/domain"
)

// AuditLogger posts settlement events to topics of an operator chat.
type AuditLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewAuditLogger(b *bot.Bot, cfg *config.Config) *AuditLogger {
	return &AuditLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError        LogType = "error"
	LogTypeSettlement   LogType = "settlement"
	LogTypeCancellation LogType = "cancellation"
)

func (l *AuditLogger) Log(logType LogType, message string) {
	if l.bot == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.getTopicID(logType)
	if topicID == 0 {
		return
	}

	// Truncate if too long
	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.NotifyTimeout)
	defer cancel()

	if err := SendLongMessage(ctx, l.bot, l.cfg.LogTelegramChatID, message, topicID); err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *AuditLogger) LogError(err error, context string) {
	l.Log(LogTypeError, errorMessage(err, context, time.Now()))
}

func (l *AuditLogger) LogSettlement(offer *domain.GroupOffer, payouts []domain.PayoutObligation, completed int) {
	l.Log(LogTypeSettlement, settlementMessage(offer, payouts, completed))
}

func (l *AuditLogger) LogCancellation(offer *domain.GroupOffer, by uuid.UUID) {
	msg := fmt.Sprintf("🚫 *Offer Cancelled*\n\n*Offer:* %s\n*ID:* `%s`\n*By:* `%s`",
		EscapeMarkdown(offer.Title), offer.ID, by)
	l.Log(LogTypeCancellation, msg)
}

func errorMessage(err error, context string, at time.Time) string {
	return fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		EscapeMarkdown(context), strings.ReplaceAll(err.Error(), "`", "'"), at.Format(time.DateTime))
}

func settlementMessage(offer *domain.GroupOffer, payouts []domain.PayoutObligation, completed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💸 *Offer Settled*\n\n*Offer:* %s\n*ID:* `%s`\n*Pot:* %s\n*Completed:* %d",
		EscapeMarkdown(offer.Title), offer.ID, offer.TotalAmount.String(), completed)
	if completed == 0 {
		b.WriteString("\n_No payouts created._")
		return b.String()
	}
	if len(payouts) < completed {
		fmt.Fprintf(&b, "\n*Written earlier:* %d", completed-len(payouts))
	}
	for _, p := range payouts {
		fmt.Fprintf(&b, "\n• `%s` %s (%s)", p.UserID, p.Amount.String(), EscapeMarkdown(string(p.Shape)))
	}
	return b.String()
}

func (l *AuditLogger) getTopicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeSettlement:
		return l.cfg.LogTopicSettlement
	case LogTypeCancellation:
		return l.cfg.LogTopicCancellation
	default:
		return 0
	}
}

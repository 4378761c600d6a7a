package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/groupoffer/internal/domain"
)

type notificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n domain.Notification) error {
	var offerID *uuid.UUID
	if n.OfferID != uuid.Nil {
		offerID = &n.OfferID
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, user_id, offer_id, title, message) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), n.ToUserID, offerID, n.Title, n.Message)
	return classify("create notification", err)
}

type channelRepository struct {
	db DBTX
}

func NewChannelRepository(db DBTX) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) TelegramChatID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var chatID int64
	err := r.db.QueryRow(ctx,
		`SELECT telegram_chat_id FROM notification_channels WHERE user_id = $1`, userID).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return chatID, classify("get telegram chat", err)
}

package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/groupoffer/internal/domain"
)

type contractRepository struct {
	db DBTX
}

func NewContractRepository(db DBTX) ContractRepository {
	return &contractRepository{db: db}
}

func (r *contractRepository) CreateIfAbsent(ctx context.Context, c *domain.FulfillmentContract) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO fulfillment_contracts
			(id, offer_id, sponsor_id, member_user_id, title, terms, is_live_confirmed, status, stage, live_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.OfferID, c.SponsorID, c.MemberUserID, c.Title, c.Terms,
		c.Confirmed, c.Status, c.Stage, c.LiveURL, c.CreatedAt)
	if err != nil {
		return false, classify("create contract", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *contractRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FulfillmentContract, error) {
	var c domain.FulfillmentContract
	err := r.db.QueryRow(ctx, `
		SELECT id, offer_id, sponsor_id, member_user_id, title, terms,
		       is_live_confirmed, status, stage, live_url, created_at
		FROM fulfillment_contracts WHERE id = $1`, id,
	).Scan(&c.ID, &c.OfferID, &c.SponsorID, &c.MemberUserID, &c.Title, &c.Terms,
		&c.Confirmed, &c.Status, &c.Stage, &c.LiveURL, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, classify("get contract", err)
	}
	return &c, nil
}

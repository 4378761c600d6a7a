package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/groupoffer/internal/domain"
)

type responseRepository struct {
	db DBTX
}

func NewResponseRepository(db DBTX) ResponseRepository {
	return &responseRepository{db: db}
}

const responseColumns = `offer_id, member_user_id, status, accepted_at, rejected_at, completed_at, fulfillment_ref, live_url`

func scanResponse(row pgx.Row) (*domain.MemberResponse, error) {
	var (
		r      domain.MemberResponse
		status string
	)
	if err := row.Scan(&r.OfferID, &r.MemberUserID, &status, &r.AcceptedAt, &r.RejectedAt,
		&r.CompletedAt, &r.FulfillmentRef, &r.LiveURL); err != nil {
		return nil, err
	}
	r.Status = domain.ResponseStatus(status)
	return &r, nil
}

func (r *responseRepository) Get(ctx context.Context, offerID, memberID uuid.UUID) (*domain.MemberResponse, error) {
	resp, err := scanResponse(r.db.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM group_offer_responses WHERE offer_id = $1 AND member_user_id = $2`,
		offerID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrResponseNotFound
		}
		return nil, classify("get response", err)
	}
	return resp, nil
}

func (r *responseRepository) ListByOffer(ctx context.Context, offerID uuid.UUID) ([]domain.MemberResponse, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+responseColumns+` FROM group_offer_responses WHERE offer_id = $1 ORDER BY member_user_id`, offerID)
	if err != nil {
		return nil, classify("list responses", err)
	}
	defer rows.Close()

	var out []domain.MemberResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, classify("list responses", err)
		}
		out = append(out, *resp)
	}
	return out, classify("list responses", rows.Err())
}

func (r *responseRepository) Upsert(ctx context.Context, offerID, memberID uuid.UUID, from []domain.ResponseStatus, to domain.ResponseStatus, at time.Time) (bool, error) {
	var acceptedAt, rejectedAt *time.Time
	switch to {
	case domain.ResponseAccepted:
		acceptedAt = &at
	case domain.ResponseRejected:
		rejectedAt = &at
	}

	var query string
	if slices.Contains(from, domain.ResponsePending) {
		query = `
			INSERT INTO group_offer_responses (offer_id, member_user_id, status, accepted_at, rejected_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (offer_id, member_user_id) DO UPDATE
			SET status      = EXCLUDED.status,
			    accepted_at = COALESCE(group_offer_responses.accepted_at, EXCLUDED.accepted_at),
			    rejected_at = COALESCE(group_offer_responses.rejected_at, EXCLUDED.rejected_at)
			WHERE group_offer_responses.status = ANY($6)`
	} else {
		query = `
			UPDATE group_offer_responses
			SET status      = $3,
			    accepted_at = COALESCE(accepted_at, $4),
			    rejected_at = COALESCE(rejected_at, $5)
			WHERE offer_id = $1 AND member_user_id = $2 AND status = ANY($6)`
	}

	tag, err := r.db.Exec(ctx, query, offerID, memberID, string(to), acceptedAt, rejectedAt, statusStrings(from))
	if err != nil {
		return false, classify("upsert response", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *responseRepository) LinkFulfillment(ctx context.Context, offerID, memberID, ref uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE group_offer_responses SET fulfillment_ref = $3
		WHERE offer_id = $1 AND member_user_id = $2 AND fulfillment_ref IS NULL`,
		offerID, memberID, ref)
	if err != nil {
		return false, classify("link fulfillment", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *responseRepository) MarkCompleted(ctx context.Context, offerID, memberID uuid.UUID, liveURL *string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE group_offer_responses
		SET status = 'completed', completed_at = $3, live_url = COALESCE($4, live_url)
		WHERE offer_id = $1 AND member_user_id = $2 AND status = 'accepted'`,
		offerID, memberID, at, liveURL)
	if err != nil {
		return false, classify("mark response completed", err)
	}
	return tag.RowsAffected() > 0, nil
}

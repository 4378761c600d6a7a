package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/shopspring/decimal"
)

type offerRepository struct {
	db DBTX
}

func NewOfferRepository(db DBTX) OfferRepository {
	return &offerRepository{db: db}
}

const offerColumns = `id, group_id, sponsor_id, title, description, total_amount::text, deadline, status, created_at`

func scanOffer(row pgx.Row) (*domain.GroupOffer, error) {
	var (
		o      domain.GroupOffer
		amount string
		status string
	)
	if err := row.Scan(&o.ID, &o.GroupID, &o.SponsorID, &o.Title, &o.Description,
		&amount, &o.Deadline, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	total, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse total amount %q: %w", amount, err)
	}
	o.TotalAmount = total
	o.Status = domain.OfferStatus(status)
	return &o, nil
}

func (r *offerRepository) Create(ctx context.Context, o *domain.GroupOffer) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO group_offers (id, group_id, sponsor_id, title, description, total_amount, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		RETURNING created_at`,
		o.ID, o.GroupID, o.SponsorID, o.Title, o.Description,
		o.TotalAmount.String(), o.Deadline, string(o.Status),
	).Scan(&o.CreatedAt)
	return classify("create offer", err)
}

func (r *offerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupOffer, error) {
	o, err := scanOffer(r.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM group_offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, classify("get offer", err)
	}
	return o, nil
}

func (r *offerRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.GroupOffer, error) {
	return r.list(ctx, "list group offers",
		`SELECT `+offerColumns+` FROM group_offers WHERE group_id = $1 ORDER BY created_at DESC`, groupID)
}

func (r *offerRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.GroupOffer, error) {
	return r.list(ctx, "list due offers", `
		SELECT `+offerColumns+` FROM group_offers
		WHERE status IN ('pending', 'active') AND deadline < $1::date
		ORDER BY deadline ASC, created_at ASC
		LIMIT $2`, asOf.Format(time.DateOnly), limit)
}

func (r *offerRepository) ListUpcoming(ctx context.Context, asOf time.Time, after uuid.UUID, limit int) ([]domain.GroupOffer, error) {
	return r.list(ctx, "list upcoming offers", `
		SELECT `+offerColumns+` FROM group_offers
		WHERE status IN ('pending', 'active') AND deadline >= $1::date AND id > $2
		ORDER BY id ASC
		LIMIT $3`, asOf.Format(time.DateOnly), after, limit)
}

func (r *offerRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.GroupOffer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var offers []domain.GroupOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		offers = append(offers, *o)
	}
	return offers, classify(op, rows.Err())
}

func (r *offerRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.OfferStatus, to domain.OfferStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE group_offers SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, string(to), statusStrings(from))
	if err != nil {
		return false, classify("update offer status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
)

// payoutShape describes how one physical payout relation names its columns.
// Both shapes key the row by the fulfillment contract id in offer_id.
type payoutShape struct {
	shape     domain.PayoutShape
	table     string
	userCol   string
	amountCol string
	extraCols string
	extraVals string
}

var (
	sponsorshipShape = payoutShape{
		shape:     domain.ShapeSponsorship,
		table:     "sponsorship_payouts",
		userCol:   "user_id",
		amountCol: "amount",
		extraCols: ", id",
		extraVals: ", $5",
	}
	sponseeShape = payoutShape{
		shape:     domain.ShapeSponsee,
		table:     "sponsee_payouts",
		userCol:   "sponsee_id",
		amountCol: "payout_amount",
		extraCols: ", payout_user_role",
		extraVals: ", 'sponsee'",
	}
)

type payoutStore struct {
	db    DBTX
	shape payoutShape
}

// NewSponsorshipPayoutStore targets the primary payout relation.
func NewSponsorshipPayoutStore(db DBTX) PayoutStore {
	return &payoutStore{db: db, shape: sponsorshipShape}
}

// NewSponseePayoutStore targets the legacy payout relation found in older
// deployments. It is only used when the primary relation is absent.
func NewSponseePayoutStore(db DBTX) PayoutStore {
	return &payoutStore{db: db, shape: sponseeShape}
}

func (s *payoutStore) Shape() domain.PayoutShape {
	return s.shape.shape
}

func (s *payoutStore) Supports(ctx context.Context) (bool, error) {
	var present bool
	err := s.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.shape.table).Scan(&present)
	if err != nil {
		return false, classify("probe "+s.shape.table, err)
	}
	return present, nil
}

func (s *payoutStore) ExistingRefs(ctx context.Context, refs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	existing := make(map[uuid.UUID]struct{})
	if len(refs) == 0 {
		return existing, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.String()
	}

	op := "select " + s.shape.table
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT offer_id FROM %s WHERE offer_id = ANY($1::uuid[])`, s.shape.table), ids)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref uuid.UUID
		if err := rows.Scan(&ref); err != nil {
			return nil, classify(op, err)
		}
		existing[ref] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return existing, nil
}

func (s *payoutStore) Insert(ctx context.Context, p *domain.PayoutObligation) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (offer_id, %s, %s, status%s)
		VALUES ($1, $2, $3::numeric, $4%s)`,
		s.shape.table, s.shape.userCol, s.shape.amountCol, s.shape.extraCols, s.shape.extraVals)

	args := []any{p.FulfillmentRef, p.UserID, p.Amount.String(), string(p.Status)}
	if s.shape.shape == domain.ShapeSponsorship {
		args = append(args, p.ID)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return classify("insert "+s.shape.table, err)
	}
	p.Shape = s.shape.shape
	return nil
}

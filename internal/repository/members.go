package repository

import (
	"context"

	"github.com/google/uuid"
)

type membershipReader struct {
	db DBTX
}

func NewMembershipReader(db DBTX) MembershipReader {
	return &membershipReader{db: db}
}

func (r *membershipReader) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&ok)
	return ok, classify("check membership", err)
}

func (r *membershipReader) IsAdmin(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 AND role = 'admin')`,
		groupID, userID).Scan(&ok)
	return ok, classify("check admin", err)
}

func (r *membershipReader) ListMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, classify("list members", err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify("list members", err)
		}
		members = append(members, id)
	}
	return members, classify("list members", rows.Err())
}

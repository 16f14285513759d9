package pgpassport

import (
	"context"
	"time"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type TransitionInput struct {
	PassportID string
	From       models.Status
	To         models.Status

	ActorEmail string
	// ActorRole is the effective role: the partner code's role for an
	// unverified actor.
	ActorRole models.Role

	Metadata      map[string]string
	PartnerCode   *string
	PointsAwarded int32
}

// ApplyTransition redeems the partner code (if any), moves the passport from
// in.From to in.To and appends the audit record in one transaction.
func (s *Storage) ApplyTransition(ctx context.Context, in TransitionInput) (*models.Passport, *models.TransitionRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if in.PartnerCode != nil {
		tag, err := tx.Exec(ctx, `
UPDATE partner_codes
SET uses = uses + 1
WHERE code = $1 AND expires_at > now() AND uses < max_uses
`, *in.PartnerCode)
		if err != nil {
			return nil, nil, errors.Wrap(err, "redeem partner code")
		}
		if tag.RowsAffected() == 0 {
			return nil, nil, ErrPartnerCodeUnavailable
		}
	}

	now := time.Now().UTC()
	p, err := scanPassport(tx.QueryRow(ctx, `
UPDATE passports
SET status = $3, updated_at = $4
WHERE id = $1::uuid AND status = $2
RETURNING `+passportColumns,
		in.PassportID, string(in.From), string(in.To), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrStatusConflict
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "update passport status")
	}

	md := in.Metadata
	if md == nil {
		md = map[string]string{}
	}
	rec := &models.TransitionRecord{
		PassportID:    in.PassportID,
		FromStatus:    in.From,
		ToStatus:      in.To,
		ActorEmail:    in.ActorEmail,
		ActorRole:     in.ActorRole,
		Metadata:      md,
		PartnerCode:   in.PartnerCode,
		PointsAwarded: in.PointsAwarded,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO passport_transitions (
  passport_id, from_status, to_status, actor_email, actor_role,
  metadata, partner_code, points_awarded, created_at
)
VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at
`, in.PassportID, string(in.From), string(in.To), in.ActorEmail, string(in.ActorRole),
		md, in.PartnerCode, in.PointsAwarded, now).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, nil, errors.Wrap(err, "insert transition")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "commit tx")
	}
	return p, rec, nil
}

func (s *Storage) ListTransitions(ctx context.Context, passportID string, limit, offset int) ([]*models.TransitionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, passport_id::text, from_status, to_status, actor_email, actor_role,
  metadata, partner_code, points_awarded, created_at
FROM passport_transitions
WHERE passport_id = $1::uuid
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, passportID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select transitions")
	}
	defer rows.Close()

	var out []*models.TransitionRecord
	for rows.Next() {
		var r models.TransitionRecord
		var from, to, role string
		if err := rows.Scan(
			&r.ID, &r.PassportID, &from, &to, &r.ActorEmail, &role,
			&r.Metadata, &r.PartnerCode, &r.PointsAwarded, &r.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan transition")
		}
		r.FromStatus = models.Status(from)
		r.ToStatus = models.Status(to)
		r.ActorRole = models.Role(role)
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

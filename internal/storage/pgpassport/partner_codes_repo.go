package pgpassport

import (
	"context"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreatePartnerCode(ctx context.Context, pc models.PartnerCode) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO partner_codes (code, role, expires_at, max_uses, uses)
VALUES ($1, $2, $3, $4, $5)
`, pc.Code, string(pc.Role), pc.ExpiresAt.UTC(), pc.MaxUses, pc.Uses)
	if err != nil {
		return errors.Wrap(err, "insert partner code")
	}
	return nil
}

// GetPartnerCode returns the code as stored; usability (expiry, remaining
// uses) is checked by the caller and enforced again on redemption.
func (s *Storage) GetPartnerCode(ctx context.Context, code string) (*models.PartnerCode, error) {
	var pc models.PartnerCode
	var role string
	err := s.db.QueryRow(ctx, `
SELECT code, role, expires_at, max_uses, uses
FROM partner_codes
WHERE code = $1
`, code).Scan(&pc.Code, &role, &pc.ExpiresAt, &pc.MaxUses, &pc.Uses)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPartnerCodeUnavailable
	}
	if err != nil {
		return nil, errors.Wrap(err, "select partner code")
	}
	pc.Role = models.Role(role)
	return &pc, nil
}

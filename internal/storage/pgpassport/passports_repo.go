package pgpassport

import (
	"context"
	"time"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const passportColumns = `id::text, serial_number, status, created_at, updated_at`

func (s *Storage) CreatePassport(ctx context.Context, serialNumber string) (*models.Passport, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO passports (id, serial_number, status, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $4)
RETURNING `+passportColumns,
		uuid.NewString(), serialNumber, models.StatusCreated, now)

	p, err := scanPassport(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert passport")
	}
	return p, nil
}

func (s *Storage) GetPassport(ctx context.Context, id string) (*models.Passport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+passportColumns+` FROM passports WHERE id = $1::uuid`, id)

	p, err := scanPassport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select passport")
	}
	return p, nil
}

func scanPassport(row pgx.Row) (*models.Passport, error) {
	var p models.Passport
	var status string
	if err := row.Scan(&p.ID, &p.SerialNumber, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	return &p, nil
}

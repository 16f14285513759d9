package mocks

import (
	"context"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/storage/pgpassport"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetPassport(ctx context.Context, id string) (*models.Passport, error) {
	args := m.Called(ctx, id)
	var p *models.Passport
	if v := args.Get(0); v != nil {
		p = v.(*models.Passport)
	}
	return p, args.Error(1)
}

func (m *MockRepository) GetPartnerCode(ctx context.Context, code string) (*models.PartnerCode, error) {
	args := m.Called(ctx, code)
	var pc *models.PartnerCode
	if v := args.Get(0); v != nil {
		pc = v.(*models.PartnerCode)
	}
	return pc, args.Error(1)
}

func (m *MockRepository) ApplyTransition(ctx context.Context, in pgpassport.TransitionInput) (*models.Passport, *models.TransitionRecord, error) {
	args := m.Called(ctx, in)
	var p *models.Passport
	if v := args.Get(0); v != nil {
		p = v.(*models.Passport)
	}
	var rec *models.TransitionRecord
	if v := args.Get(1); v != nil {
		rec = v.(*models.TransitionRecord)
	}
	return p, rec, args.Error(2)
}

func (m *MockRepository) ListTransitions(ctx context.Context, passportID string, limit, offset int) ([]*models.TransitionRecord, error) {
	args := m.Called(ctx, passportID, limit, offset)
	var out []*models.TransitionRecord
	if v := args.Get(0); v != nil {
		out = v.([]*models.TransitionRecord)
	}
	return out, args.Error(1)
}

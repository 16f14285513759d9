package mocks

import (
	"context"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockBulkClient struct {
	mock.Mock
}

func (m *MockBulkClient) BulkTransition(ctx context.Context, batch models.DispatchBatch) (models.BulkResult, error) {
	args := m.Called(ctx, batch)
	return args.Get(0).(models.BulkResult), args.Error(1)
}

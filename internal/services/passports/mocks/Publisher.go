package mocks

import (
	"context"

	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTransitioned(ctx context.Context, msg messages.PassportTransitioned) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

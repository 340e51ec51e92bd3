package mocks

import (
	"context"

	"keepsake-server/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// ResultPublisher is a mock type for the ResultPublisher type
type ResultPublisher struct {
	mock.Mock
}

func (m *ResultPublisher) PublishProgressionResult(ctx context.Context, notification messaging.ProgressionNotification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *ResultPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

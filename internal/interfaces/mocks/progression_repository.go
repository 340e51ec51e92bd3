package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// ProgressionRepository is a mock type for the ProgressionRepository type
type ProgressionRepository struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, playerID
func (_m *ProgressionRepository) Get(ctx context.Context, playerID string) ([]byte, error) {
	args := _m.Called(ctx, playerID)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Upsert provides a mock function with given fields: ctx, playerID, data
func (_m *ProgressionRepository) Upsert(ctx context.Context, playerID string, data []byte) error {
	args := _m.Called(ctx, playerID, data)
	return args.Error(0)
}

// Delete provides a mock function with given fields: ctx, playerID
func (_m *ProgressionRepository) Delete(ctx context.Context, playerID string) error {
	args := _m.Called(ctx, playerID)
	return args.Error(0)
}

// NewProgressionRepository creates a new instance of ProgressionRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewProgressionRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *ProgressionRepository {
	m := &ProgressionRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
